package models

// AppTemplate is a catalog entry describing a one-click deployable app.
// Loaded once at startup from the app catalog file; immutable thereafter.
type AppTemplate struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Icon        string   `json:"icon"`
	Category    string   `json:"category"`
	Description string   `json:"description"`
	VCPUs       int      `json:"vcpus"`
	MemoryMiB   int      `json:"memory_mib"`
	DiskGiB     int      `json:"disk_gib"`
	CostPerDay  float64  `json:"cost_per_day"`
	Tags        []string `json:"tags"`
	Compose     string   `json:"compose"`
}

// Category is a grouping label shown alongside the app catalog.
type Category struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Literal placeholders an app template's compose document may contain; the
// orchestrator substitutes per-deployment random strings for these before
// install and discloses them back to the caller exactly once.
const (
	PlaceholderPassword     = "__GENERATED_PASSWORD__"
	PlaceholderRootPassword = "__GENERATED_ROOT_PASSWORD__"
)
