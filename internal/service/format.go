package service

import (
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var (
	pricePrinter       = message.NewPrinter(language.BrazilianPortuguese)
	channelNameInvalid = regexp.MustCompile(`[^a-z0-9_-]+`)
)

func formatPrice(price decimal.Decimal) string {
	return pricePrinter.Sprint(currency.Symbol(currency.BRL.Amount(price.InexactFloat64())))
}

// channelName builds a platform-safe channel name such as "pagamento-joao".
func channelName(prefix, suffix string) string {
	suffix = channelNameInvalid.ReplaceAllString(strings.ToLower(suffix), "-")
	suffix = strings.Trim(suffix, "-")
	if suffix == "" {
		return prefix
	}
	name := prefix + "-" + suffix
	if len(name) > 90 {
		name = name[:90]
	}
	return name
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
