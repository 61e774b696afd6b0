package cfg

type Cfg struct {
	// Remote sources
	Token      string
	IndexURL   string
	APIBaseURL string
	UserAgent  string

	// Storage
	DataDir       string
	OverridesFile string

	// Service
	Port           string
	APIAccessKey   string
	RateLimit      float64
	RateBurst      int
	RefreshHour    int
	RefreshMinute  int
	RefreshOnStart bool

	// Application metadata
	Timezone string
	Debug    bool
	Version  string
}
