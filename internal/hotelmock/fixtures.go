package hotelmock

func fixtureRooms() []Room {
	return []Room{
		{
			RoomType:      "Single Room",
			PricePerNight: 250,
			Capacity:      1,
			Amenities:     []string{"WiFi", "TV", "Air conditioning"},
		},
		{
			RoomType:      "Double Room",
			PricePerNight: 450,
			Capacity:      2,
			Amenities:     []string{"WiFi", "TV", "Air conditioning", "Minibar"},
		},
		{
			RoomType:      "Twin Room",
			PricePerNight: 430,
			Capacity:      2,
			Amenities:     []string{"WiFi", "TV", "Air conditioning"},
		},
		{
			RoomType:      "Family Room",
			PricePerNight: 620,
			Capacity:      4,
			Amenities:     []string{"WiFi", "TV", "Air conditioning", "Minibar", "Baby cot"},
		},
		{
			RoomType:      "Deluxe Suite",
			PricePerNight: 980,
			Capacity:      3,
			Amenities:     []string{"WiFi", "TV", "Air conditioning", "Minibar", "Balcony", "Bathtub"},
		},
		{
			RoomType:      "Presidential Suite",
			PricePerNight: 2400,
			Capacity:      6,
			Amenities:     []string{"WiFi", "TV", "Air conditioning", "Minibar", "Balcony", "Bathtub", "Private dining room"},
		},
	}
}

func fixtureMenu() []MenuItem {
	return []MenuItem{
		{ID: 1, Name: "Żurek", Description: "Sour rye soup with white sausage and egg", Price: 28},
		{ID: 2, Name: "Pierogi", Description: "Handmade dumplings with potato and cheese filling", Price: 34},
		{ID: 3, Name: "Beef Tartare", Description: "Hand-cut beef with pickles, onion, and egg yolk", Price: 52},
		{ID: 4, Name: "Duck Breast", Description: "Roast duck breast with red cabbage and apple", Price: 78},
		{ID: 5, Name: "Pike-Perch", Description: "Pan-fried pike-perch with seasonal vegetables", Price: 72},
		{ID: 6, Name: "Apple Pie", Description: "Warm apple pie with vanilla ice cream", Price: 26},
	}
}
