package models

type AppSettings struct {
	ID            int64 `json:"id"`
	MarkupPercent int   `json:"markup_percent"`
}
