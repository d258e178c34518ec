package provider

import "github.com/shopspring/decimal"

// DemoServices is the catalog served when no provider is configured, so the
// platform stays usable in development without upstream credentials.
func DemoServices() []Service {
	rate := func(s string) decimal.Decimal { d, _ := decimal.NewFromString(s); return d }
	return []Service{
		{Service: 1, Name: "Instagram Followers [Real HQ] [Max 50K]", Type: "Default", Category: "Instagram Followers", Rate: rate("0.85"), Min: 10, Max: 50000, Refill: true},
		{Service: 2, Name: "Instagram Likes [Instant] [Max 20K]", Type: "Default", Category: "Instagram Likes", Rate: rate("0.20"), Min: 10, Max: 20000, Cancel: true},
		{Service: 3, Name: "TikTok Views [Instant Start]", Type: "Default", Category: "TikTok Views", Rate: rate("0.01"), Min: 1000, Max: 10000000},
		{Service: 4, Name: "TikTok Followers [Real] [Refill 30D]", Type: "Default", Category: "TikTok Followers", Rate: rate("1.50"), Min: 50, Max: 100000, Refill: true},
		{Service: 5, Name: "YouTube Subscribers [Non-Drop]", Type: "Default", Category: "YouTube Subscribers", Rate: rate("15.50"), Min: 50, Max: 5000, Refill: true},
		{Service: 6, Name: "YouTube Views [High Retention]", Type: "Default", Category: "YouTube Views", Rate: rate("2.50"), Min: 500, Max: 1000000, Cancel: true},
		{Service: 7, Name: "Facebook Page Likes [Refill 30D]", Type: "Default", Category: "Facebook Page Likes", Rate: rate("2.40"), Min: 100, Max: 50000, Refill: true},
		{Service: 8, Name: "X/Twitter Followers [Real]", Type: "Default", Category: "Twitter Followers", Rate: rate("3.00"), Min: 100, Max: 25000, Refill: true},
		{Service: 9, Name: "X/Twitter Likes [Fast]", Type: "Default", Category: "Twitter Likes", Rate: rate("0.80"), Min: 10, Max: 10000, Cancel: true},
		{Service: 10, Name: "Telegram Channel Members [Non-Drop]", Type: "Default", Category: "Telegram Members", Rate: rate("1.20"), Min: 100, Max: 100000, Refill: true},
	}
}
