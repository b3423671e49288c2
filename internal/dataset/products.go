package dataset

import "encoding/json"

// DefaultName labels the built-in sample dataset.
const DefaultName = "Sample product data"

// Product is the record shape the assistant expects.
type Product struct {
	ID       int     `json:"id"`
	Name     string  `json:"name"`
	Category string  `json:"category"`
	Price    float64 `json:"price"`
	Stock    int     `json:"stock"`
	Rating   float64 `json:"rating"`
}

// SampleProducts is the built-in catalog
var SampleProducts = []Product{
	{ID: 1, Name: "Laptop Pro", Category: "Electronics", Price: 1200, Stock: 50, Rating: 4.8},
	{ID: 2, Name: "Smartphone X", Category: "Electronics", Price: 800, Stock: 150, Rating: 4.6},
	{ID: 3, Name: "Wireless Headphones", Category: "Electronics", Price: 150, Stock: 300, Rating: 4.7},
	{ID: 4, Name: "The Sci-Fi Novel", Category: "Books", Price: 20, Stock: 500, Rating: 4.9},
	{ID: 5, Name: "History of the World", Category: "Books", Price: 35, Stock: 250, Rating: 4.5},
	{ID: 6, Name: "Classic T-Shirt", Category: "Clothing", Price: 25, Stock: 800, Rating: 4.4},
	{ID: 7, Name: "Denim Jeans", Category: "Clothing", Price: 70, Stock: 400, Rating: 4.3},
	{ID: 8, Name: "Coffee Maker", Category: "Home Goods", Price: 90, Stock: 200, Rating: 4.6},
	{ID: 9, Name: "Blender", Category: "Home Goods", Price: 60, Stock: 220, Rating: 4.5},
	{ID: 10, Name: "Gaming Mouse", Category: "Electronics", Price: 55, Stock: 180, Rating: 4.8},
}

// FromProducts wraps typed products as a dataset.
func FromProducts(name string, products []Product) *Dataset {
	records := make([]json.RawMessage, 0, len(products))
	for _, p := range products {
		b, err := json.Marshal(p)
		if err != nil {
			continue
		}
		records = append(records, b)
	}
	return &Dataset{Name: name, Records: records}
}

// Default returns a fresh copy of the sample dataset.
func Default() *Dataset {
	return FromProducts(DefaultName, SampleProducts)
}
