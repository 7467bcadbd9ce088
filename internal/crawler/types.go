package crawler

import (
	"errors"
	"net/http"
	"time"
)

// Availability reports whether a scraped product can currently be bought.
type Availability string

// Availability values. Records always carry one of these.
const (
	AvailabilityIn  Availability = "in"
	AvailabilityOut Availability = "out"
)

// Condition describes the wear state inferred for a product.
type Condition string

// Condition values. The zero value means nothing was inferred.
const (
	ConditionNew         Condition = "new"
	ConditionUsed        Condition = "used"
	ConditionRefurbished Condition = "refurbished"
)

// Labels appended by the condition classifier.
const (
	LabelSold = "Sold"
	LabelUsed = "Used"
)

// ImageSource records how a record's image URL was found.
type ImageSource string

// Image provenance values.
const (
	ImageSourceNone         ImageSource = ""
	ImageSourceStructured   ImageSource = "structured"
	ImageSourceCard         ImageSource = "card"
	ImageSourceNameMatch    ImageSource = "name_match"
	ImageSourcePageFallback ImageSource = "page_fallback"
)

// Strategy names the extraction layer that produced a page's records.
type Strategy string

// Extraction strategies in the order they are attempted.
const (
	StrategyNone       Strategy = "none"
	StrategyStructured Strategy = "structured"
	StrategySelectors  Strategy = "selectors"
	StrategyGeneric    Strategy = "generic"
)

// Selectors holds comma-joined alternative selector lists per field. Every
// field is optional; for each field the first alternative that matches wins.
type Selectors struct {
	ListContainer        string `json:"list_container,omitempty" mapstructure:"list_container"`
	CardSelector         string `json:"card_selector,omitempty" mapstructure:"card_selector"`
	Title                string `json:"title,omitempty" mapstructure:"title"`
	Price                string `json:"price,omitempty" mapstructure:"price"`
	OriginalPrice        string `json:"original_price,omitempty" mapstructure:"original_price"`
	Image                string `json:"image,omitempty" mapstructure:"image"`
	Description          string `json:"description,omitempty" mapstructure:"description"`
	AvailabilitySelector string `json:"availability_selector,omitempty" mapstructure:"availability_selector"`
	Link                 string `json:"link,omitempty" mapstructure:"link"`
}

// Pagination configures how the walker advances across catalog pages.
type Pagination struct {
	NextPageSelector string `json:"next_page_selector,omitempty" mapstructure:"next_page_selector"`
	MaxPages         int    `json:"max_pages,omitempty" mapstructure:"max_pages"`
	PageParam        string `json:"page_param,omitempty" mapstructure:"page_param"`
}

// ExtractionConfig is the immutable per-invocation extraction recipe.
type ExtractionConfig struct {
	TargetURL  string      `json:"target_url,omitempty" mapstructure:"target_url"`
	Selectors  Selectors   `json:"selectors" mapstructure:"selectors"`
	Pagination *Pagination `json:"pagination,omitempty" mapstructure:"pagination"`
}

// WithTarget returns a copy of the config bound to targetURL.
func (c ExtractionConfig) WithTarget(targetURL string) ExtractionConfig {
	cp := c
	cp.TargetURL = targetURL
	if c.Pagination != nil {
		p := *c.Pagination
		cp.Pagination = &p
	}
	return cp
}

// MaxPages returns the configured page ceiling, at least one.
func (c ExtractionConfig) MaxPages() int {
	if c.Pagination == nil || c.Pagination.MaxPages <= 0 {
		return 1
	}
	return c.Pagination.MaxPages
}

// PageRange selects explicit page numbers for range-batch pagination.
type PageRange struct {
	Start int `json:"start" mapstructure:"start"`
	End   int `json:"end" mapstructure:"end"`
}

// ScrapedRecord is one product extracted from a catalog page. Records are
// built once and never mutated afterwards; Labels is never nil.
type ScrapedRecord struct {
	ID            string       `json:"id"`
	Title         string       `json:"title"`
	Price         float64      `json:"price"`
	OriginalPrice *float64     `json:"original_price,omitempty"`
	Brand         string       `json:"brand,omitempty"`
	Category      string       `json:"category,omitempty"`
	ImageURL      string       `json:"image_url,omitempty"`
	ImageSource   ImageSource  `json:"image_source,omitempty"`
	Description   string       `json:"description,omitempty"`
	Availability  Availability `json:"availability"`
	SourceURL     string       `json:"source_url"`
	ProductURL    string       `json:"product_url,omitempty"`
	Condition     Condition    `json:"condition,omitempty"`
	IsSoldOut     bool         `json:"is_sold_out,omitempty"`
	Labels        []string     `json:"labels"`
}

// Key returns the persistence identity of the record.
func (r ScrapedRecord) Key() string {
	return ProductKey(r.SourceURL, r.Title)
}

// ValidateForPersistence rejects a batch containing a record that cannot be
// keyed. Repositories call it before writing so no adapter stores a partial
// batch.
func ValidateForPersistence(records []ScrapedRecord) error {
	for _, rec := range records {
		if rec.Title == "" {
			return &PersistenceError{Op: "validate record " + rec.ID, Err: errors.New("record has no title")}
		}
	}
	return nil
}

// PersistedProduct is the stored form of a record, owned by the repository.
type PersistedProduct struct {
	Key         string        `json:"key"`
	Record      ScrapedRecord `json:"record"`
	ScrapedAt   time.Time     `json:"scraped_at"`
	LastUpdated time.Time     `json:"last_updated"`
	IsActive    bool          `json:"is_active"`
}

// UpsertResult counts the outcome of a batch upsert.
type UpsertResult struct {
	Added   int `json:"added"`
	Updated int `json:"updated"`
}

// JobStatus represents the lifecycle state of a crawl job.
type JobStatus string

// Job status values. Completed and failed are terminal.
const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
)

// Terminal reports whether no further transitions are allowed.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// Trigger records who started a crawl.
type Trigger string

// Trigger values.
const (
	TriggerCron   Trigger = "cron"
	TriggerManual Trigger = "manual"
	TriggerAPI    Trigger = "api"
)

// CrawlJob is the provenance record of one crawl invocation.
type CrawlJob struct {
	ID              string     `json:"id"`
	Status          JobStatus  `json:"status"`
	SourceSite      string     `json:"source_site"`
	SourceURL       string     `json:"source_url"`
	PageRange       *PageRange `json:"page_range,omitempty"`
	ProductsScraped int        `json:"products_scraped"`
	ProductsAdded   int        `json:"products_added"`
	ProductsUpdated int        `json:"products_updated"`
	ErrorMessage    string     `json:"error_message,omitempty"`
	StartedAt       time.Time  `json:"started_at"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"`
	TriggeredBy     Trigger    `json:"triggered_by"`
	DurationSeconds *float64   `json:"duration_seconds,omitempty"`
}

// JobUpdate carries the fields to change on a job; nil fields are left alone.
type JobUpdate struct {
	Status          *JobStatus
	ProductsScraped *int
	ProductsAdded   *int
	ProductsUpdated *int
	ErrorMessage    *string
	CompletedAt     *time.Time
	DurationSeconds *float64
}

// JobFilter narrows ListJobs results.
type JobFilter struct {
	Status *JobStatus
	Limit  int
}

// Page is one fetched catalog page.
type Page struct {
	URL        string
	FinalURL   string
	StatusCode int
	Headers    http.Header
	Body       []byte
	Duration   time.Duration
}

// QueueItem wraps a submitted crawl ready to run.
type QueueItem struct {
	JobID     string
	Request   Request
	Submitted int64
}

// Request is the invocation input of a crawl.
type Request struct {
	TargetURL   string            `json:"target_url" mapstructure:"target_url"`
	Preset      string            `json:"preset,omitempty" mapstructure:"preset"`
	Config      *ExtractionConfig `json:"config,omitempty" mapstructure:"config"`
	PageRange   *PageRange        `json:"page_range,omitempty" mapstructure:"page_range"`
	SourceSite  string            `json:"source_site,omitempty" mapstructure:"source_site"`
	TriggeredBy Trigger           `json:"triggered_by,omitempty" mapstructure:"triggered_by"`
}

// PageFailure records a page that could not be fetched during a walk.
type PageFailure struct {
	URL        string `json:"url"`
	Page       int    `json:"page"`
	Kind       string `json:"kind"`
	StatusCode int    `json:"status_code,omitempty"`
	Message    string `json:"message"`
}

// Result is the invocation output of a successful crawl.
type Result struct {
	JobID           string          `json:"job_id"`
	Records         []ScrapedRecord `json:"records"`
	PagesFetched    int             `json:"pages_fetched"`
	ProductsAdded   int             `json:"products_added"`
	ProductsUpdated int             `json:"products_updated"`
	FailedPages     []PageFailure   `json:"failed_pages,omitempty"`
	Duration        time.Duration   `json:"-"`
}
