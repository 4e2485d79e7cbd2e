package apiclient

// CoffeeShop is the resource the list and edit views work with.
type CoffeeShop struct {
	ID                  string  `json:"id,omitempty"`
	Name                string  `json:"name"`
	Owner               string  `json:"owner"`
	Address             string  `json:"address"`
	Phone               string  `json:"phone"`
	PriceOfCoffee       float64 `json:"priceOfCoffee"`
	PowerAccessible     bool    `json:"powerAccessible"`
	InternetReliability int     `json:"internetReliability"`
}
