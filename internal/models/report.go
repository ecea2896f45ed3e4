package models

// VisualizationType suggests how an insight should be rendered by a client.
type VisualizationType string

const (
	VisualizationTypeBarChart   VisualizationType = "BAR_CHART"
	VisualizationTypePieChart   VisualizationType = "PIE_CHART"
	VisualizationTypeNumberCard VisualizationType = "NUMBER_CARD"
	VisualizationTypeGaugeChart VisualizationType = "GAUGE_CHART"
	VisualizationTypeNone       VisualizationType = "NONE"
)

// KnownVisualizationType reports whether v is one of the enumerated kinds.
func KnownVisualizationType(v VisualizationType) bool {
	switch v {
	case VisualizationTypeBarChart,
		VisualizationTypePieChart,
		VisualizationTypeNumberCard,
		VisualizationTypeGaugeChart,
		VisualizationTypeNone:
		return true
	}
	return false
}

// ResearchProfile is the immutable input to report generation. The structured
// research pillars may be left empty in favour of the single Objective string.
type ResearchProfile struct {
	StartupName          string `json:"startupName"`
	Sector               string `json:"sector"`
	TargetAudience       string `json:"targetAudience,omitempty"`
	ValueProposition     string `json:"valueProposition,omitempty"`
	MarketDynamics       string `json:"marketDynamics,omitempty"`
	CompetitiveLandscape string `json:"competitiveLandscape,omitempty"`
	ConsumerBehavior     string `json:"consumerBehavior,omitempty"`
	RegulatoryRisks      string `json:"regulatoryRisks,omitempty"`
	Objective            string `json:"objective,omitempty"`
}

// UploadedDocument is caller-supplied supporting material for one generation
// request. It is never persisted.
type UploadedDocument struct {
	Name    string `json:"name"`
	Content string `json:"content"`
}

// Insight is one quantified data point in a report.
type Insight struct {
	Metric            string            `json:"metric"`
	Value             string            `json:"value"`
	NumericalValue    float64           `json:"numericalValue"`
	Commentary        string            `json:"commentary"`
	VisualizationType VisualizationType `json:"visualizationType"`
}

type Competitor struct {
	Name       string `json:"name"`
	Strengths  string `json:"strengths"`
	Weaknesses string `json:"weaknesses"`
}

type MarketAnalysis struct {
	MarketSize          string       `json:"marketSize"`
	KeyTrends           []string     `json:"keyTrends"`
	CompetitorLandscape []Competitor `json:"competitorLandscape"`
}

// Source is a web citation attached to a report. Sources are deduplicated by
// URI within one report.
type Source struct {
	URI   string `json:"uri"`
	Title string `json:"title"`
}

// ResearchReport is the structured research artifact. MarketAnalysis is a
// pointer and DataInsights distinguishes nil from empty so that shape
// validation can tell a missing key from an empty one. StrategicPerspectives
// and Sources are omitted from JSON entirely when unset.
type ResearchReport struct {
	ExecutiveSummary      string          `json:"executiveSummary"`
	MarketAnalysis        *MarketAnalysis `json:"marketAnalysis,omitempty"`
	DataInsights          []Insight       `json:"dataInsights"`
	StrategicPerspectives string          `json:"strategicPerspectives,omitempty"`
	Sources               []Source        `json:"sources,omitempty"`
}

// HistoryItem ties one generated report to a profile namespace. The report is
// replaced wholesale on an accepted edit; id, startupName, date and profile
// never change after creation.
type HistoryItem struct {
	ID          string         `json:"id"`
	StartupName string         `json:"startupName"`
	Date        string         `json:"date"`
	Report      ResearchReport `json:"report"`
	Profile     string         `json:"profile"`
}
