package marketdata

import (
	"context"

	"github.com/bobmcallan/tickersync/internal/models"
)

// CollectInfo fetches descriptive metadata for each ticker from the
// provider. Failing tickers are returned separately; the loop continues.
func (s *Service) CollectInfo(ctx context.Context, tickers []string) ([]models.TickerInfo, []models.ProblematicTicker) {
	infos := make([]models.TickerInfo, 0, len(tickers))
	var problems []models.ProblematicTicker

	for i, ticker := range tickers {
		if ctx.Err() != nil {
			break
		}
		info, err := s.provider.GetSymbolInfo(ctx, ticker)
		if err != nil {
			s.logger.Warn().Str("ticker", ticker).Err(err).Msg("Symbol info fetch failed")
			problems = append(problems, models.ProblematicTicker{Ticker: ticker, Error: err.Error()})
			continue
		}
		infos = append(infos, *info)
		s.throttle(ctx, i+1)
	}
	return infos, problems
}

// BuildCleanList returns the tickers that did not fail during the run, in
// their original order. Written as the <list>_clean side artifact.
func BuildCleanList(tickers []string, problems []models.ProblematicTicker) []string {
	failed := make(map[string]bool, len(problems))
	for _, p := range problems {
		failed[p.Ticker] = true
	}
	clean := make([]string, 0, len(tickers))
	for _, t := range tickers {
		if !failed[t] {
			clean = append(clean, t)
		}
	}
	return clean
}
