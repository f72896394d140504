package sync

import (
	"time"

	"dataengine/pkg/datasource"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// seedSymbols is the built-in minimal directory per asset class, used when a
// bootstrap directory pull fails so the engine never starts with an empty
// directory.
var seedSymbols = map[datasource.AssetClass][]datasource.AssetMeta{
	datasource.ClassEquity: {
		{Code: "000001", FullCode: "000001.SZ", Name: "Ping An Bank", Exchange: "SZ", AssetType: datasource.TypeStock, ListingDate: date(1991, 4, 3), IsActive: true},
		{Code: "000002", FullCode: "000002.SZ", Name: "China Vanke", Exchange: "SZ", AssetType: datasource.TypeStock, ListingDate: date(1991, 1, 29), IsActive: true},
		{Code: "600036", FullCode: "600036.SH", Name: "China Merchants Bank", Exchange: "SH", AssetType: datasource.TypeStock, ListingDate: date(2002, 4, 9), IsActive: true},
		{Code: "600519", FullCode: "600519.SH", Name: "Kweichow Moutai", Exchange: "SH", AssetType: datasource.TypeStock, ListingDate: date(2001, 8, 27), IsActive: true},
	},
	datasource.ClassBond: {
		{Code: "113050", FullCode: "113050.SH", Name: "Nanyin Convertible Bond", Exchange: "SH", AssetType: datasource.TypeConvertibleBond, ListingDate: date(2021, 7, 1), IsActive: true},
		{Code: "127007", FullCode: "127007.SZ", Name: "Hongtao Convertible Bond", Exchange: "SZ", AssetType: datasource.TypeConvertibleBond, ListingDate: date(2018, 10, 15), IsActive: true},
	},
	datasource.ClassCrypto: {
		{Code: "BTC", FullCode: "BTC.PERP", Name: "BTC", Exchange: "PERP", AssetType: datasource.TypeSpot, IsActive: true},
		{Code: "ETH", FullCode: "ETH.PERP", Name: "ETH", Exchange: "PERP", AssetType: datasource.TypeSpot, IsActive: true},
		{Code: "SOL", FullCode: "SOL.PERP", Name: "SOL", Exchange: "PERP", AssetType: datasource.TypeSpot, IsActive: true},
	},
	datasource.ClassFX: {
		{Code: "EURUSD", FullCode: "EURUSD.FX", Name: "Euro / US Dollar", Exchange: "FX", AssetType: datasource.TypePair, IsActive: true},
		{Code: "USDCNY", FullCode: "USDCNY.FX", Name: "US Dollar / Chinese Yuan", Exchange: "FX", AssetType: datasource.TypePair, IsActive: true},
		{Code: "GBPUSD", FullCode: "GBPUSD.FX", Name: "British Pound / US Dollar", Exchange: "FX", AssetType: datasource.TypePair, IsActive: true},
	},
}

// SeedSymbols returns the built-in seed directory for an asset class.
func SeedSymbols(class datasource.AssetClass) []datasource.AssetMeta {
	seeds := seedSymbols[class]
	out := make([]datasource.AssetMeta, len(seeds))
	copy(out, seeds)
	return out
}
