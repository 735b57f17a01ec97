package models

// ClassifiedBookmark is a bookmark with the labels assigned by the AI provider
type ClassifiedBookmark struct {
	Bookmark    Bookmark `json:"bookmark"`
	Category    string   `json:"category"`
	Subcategory string   `json:"subcategory,omitempty"`
	Tags        []string `json:"tags"`
	Summary     string   `json:"summary"`
}

// ClassificationResult is the merged output of all classification batches
type ClassificationResult struct {
	Items      []ClassifiedBookmark `json:"items"`
	Categories []string             `json:"categories"`
}

// AddCategory appends a category if it has not been seen yet
func (r *ClassificationResult) AddCategory(category string) {
	if category == "" {
		return
	}
	for _, c := range r.Categories {
		if c == category {
			return
		}
	}
	r.Categories = append(r.Categories, category)
}

// GenerateResult describes a written vault
type GenerateResult struct {
	FilesCreated      int      `json:"filesCreated"`
	CategoriesCreated []string `json:"categoriesCreated"`
	OutputDir         string   `json:"outputDir"`
}
