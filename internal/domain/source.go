package domain

// SourceID identifies the provider a series was fetched from.
type SourceID string

const (
	SourceAlphaVantage  SourceID = "alpha_vantage"
	SourceYahoo         SourceID = "yahoo"
	SourceTwelveData    SourceID = "twelvedata"
	SourceFinnhub       SourceID = "finnhub"
	SourceBinance       SourceID = "binance"
	SourceReferenceSite SourceID = "reference_site"
)
