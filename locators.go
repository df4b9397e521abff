package main

import "strings"

// Site data for www.popmart.com. Everything in this file is configuration,
// not logic: config.yaml can override any of it through the Selectors
// block and the top-level URL fields.

const (
	defaultBaseURL  = "https://www.popmart.com"
	defaultLoginURL = "https://www.popmart.com/us/user/login?redirect=%2Faccount"
)

// defaultRegions are the storefront region codes whose account page counts
// as a successful login redirect.
var defaultRegions = []string{"ca", "us"}

// defaultOutOfStockPhrases mark a product page as not purchasable. No
// phrase matching means in stock.
var defaultOutOfStockPhrases = []string{
	"out of stock",
	"sold out",
	"not available",
	"unavailable",
	"coming soon",
}

const (
	defaultAgreementSelector = ".policy_acceptBtn__ZNU71"
	defaultLoginField        = ".index_loginInput__HBgjq"
	defaultPasswordField     = "#password"
	defaultLoginButton       = ".index_loginButton__O6r8l"
	defaultBuyNowSelector    = ".index_usBtn__2KlEx.index_red__kx6Ql.index_btnFull__F7k90"
	defaultGoToCartSelector  = ".ant-btn.ant-btn-primary.ant-btn-dangerous.index_noticeFooterBtn__XpFsc"
	defaultCheckboxSelector  = ".index_checkbox__w_166"
	defaultCheckoutSelector  = ".ant-btn.ant-btn-primary.ant-btn-dangerous.index_checkout__V9YPC"
	defaultPaySelector       = "#__next > div > div > div.layout_pcLayout__49ZwP > div.index_container__SNJGT > div.index_leftContainer__3Roux > div > button"
	defaultOrderingSelector  = "#buttons-container > div > div.paypal-button-row.paypal-button-number-0.paypal-button-layout-horizontal.paypal-button-number-multiple.paypal-button-env-production.paypal-button-color-black.paypal-button-text-color-white.paypal-logo-color-white.paypal-button-shape-rect"
)

// ExtractProductID pulls the numeric product ID out of a PopMart product
// URL, e.g. https://www.popmart.com/us/products/1372/THE-MONSTERS yields
// "1372". Returns "" when the URL has no products segment.
func ExtractProductID(rawURL string) string {
	parts := strings.Split(rawURL, "/")
	for i, part := range parts {
		if part == "products" && i+1 < len(parts) && parts[i+1] != "" {
			return parts[i+1]
		}
	}
	return ""
}
