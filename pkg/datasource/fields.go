package datasource

// ProjectFields restricts bars to the requested numeric fields, zeroing the
// rest. A nil or empty field list keeps every field. Identity columns (code,
// name, asset type, date) always survive projection.
func ProjectFields(bars []Bar, fields []string) []Bar {
	if len(fields) == 0 {
		return bars
	}
	keep := make(map[string]bool, len(fields))
	for _, f := range fields {
		keep[f] = true
	}
	out := make([]Bar, len(bars))
	for i, bar := range bars {
		projected := Bar{
			Code:      bar.Code,
			Name:      bar.Name,
			AssetType: bar.AssetType,
			Date:      bar.Date,
		}
		if keep["open"] {
			projected.Open = bar.Open
		}
		if keep["high"] {
			projected.High = bar.High
		}
		if keep["low"] {
			projected.Low = bar.Low
		}
		if keep["close"] {
			projected.Close = bar.Close
		}
		if keep["volume"] {
			projected.Volume = bar.Volume
		}
		if keep["turnover"] {
			projected.Turnover = bar.Turnover
		}
		if keep["pct_change"] {
			projected.PctChange = bar.PctChange
		}
		out[i] = projected
	}
	return out
}
