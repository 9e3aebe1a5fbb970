package symbol

import "strings"

// BinanceConverter 在 BTC/USDT 与 Binance 的 BTCUSDT 之间转换。
type BinanceConverter struct{}

func (BinanceConverter) ToExchange(internal string) string {
	if sym := Parse(internal).Binance(); sym != "" {
		return sym
	}
	s := strings.ToUpper(strings.TrimSpace(internal))
	return strings.ReplaceAll(s, "/", "")
}

func (BinanceConverter) FromExchange(raw string) string {
	return Parse(raw).Internal()
}

func (BinanceConverter) Format() Format {
	return FormatBinance
}

var Binance = BinanceConverter{}
