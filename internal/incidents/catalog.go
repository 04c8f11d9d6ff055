package incidents

// Category groups hazard types.
type Category struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// Type is a reportable hazard type.
type Type struct {
	ID         int    `json:"id"`
	Name       string `json:"name"`
	CategoryID int    `json:"category_id"`
}

var categories = []Category{
	{ID: 1, Name: "Accident"},
	{ID: 2, Name: "Traffic jam"},
	{ID: 3, Name: "Road closed"},
	{ID: 4, Name: "Police check"},
	{ID: 5, Name: "Obstacle on the road"},
}

var types = []Type{
	{ID: 1, Name: "Vehicle collision", CategoryID: 1},
	{ID: 2, Name: "Multi-vehicle accident", CategoryID: 1},
	{ID: 3, Name: "Accident with injuries", CategoryID: 1},
	{ID: 4, Name: "Major traffic jam", CategoryID: 2},
	{ID: 5, Name: "Slow traffic", CategoryID: 2},
	{ID: 6, Name: "Road blocked", CategoryID: 3},
	{ID: 7, Name: "Roadworks", CategoryID: 3},
	{ID: 8, Name: "Fixed speed camera", CategoryID: 4},
	{ID: 9, Name: "Mobile police check", CategoryID: 4},
	{ID: 10, Name: "Debris on the road", CategoryID: 5},
	{ID: 11, Name: "Animal on the road", CategoryID: 5},
	{ID: 12, Name: "Object on the road", CategoryID: 5},
}

// CatalogEntry is a category with its types, as served to clients.
type CatalogEntry struct {
	Category
	Types []Type `json:"types"`
}

// Catalog returns every category with its types, in id order.
func Catalog() []CatalogEntry {
	entries := make([]CatalogEntry, 0, len(categories))
	for _, c := range categories {
		entry := CatalogEntry{Category: c}
		for _, t := range types {
			if t.CategoryID == c.ID {
				entry.Types = append(entry.Types, t)
			}
		}
		entries = append(entries, entry)
	}
	return entries
}

func TypeByID(id int) (Type, bool) {
	for _, t := range types {
		if t.ID == id {
			return t, true
		}
	}
	return Type{}, false
}
