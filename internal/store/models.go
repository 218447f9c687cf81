package store

import "time"

// Lead statuses.
const (
	LeadStatusNew       = "new"
	LeadStatusContacted = "contacted"
	LeadStatusQualified = "qualified"
	LeadStatusClosed    = "closed"
)

// Lead is a marketing contact captured by the lead form.
type Lead struct {
	ID        string    `gorm:"primaryKey;type:uuid" json:"id"`
	Email     string    `gorm:"not null;index" json:"email"`
	Name      string    `gorm:"type:varchar(255)" json:"name"`
	Company   string    `gorm:"type:varchar(255)" json:"company,omitempty"`
	Website   string    `gorm:"type:varchar(512)" json:"website,omitempty"`
	Message   string    `gorm:"type:text" json:"message,omitempty"`
	Source    string    `gorm:"type:varchar(64)" json:"source,omitempty"`
	Status    string    `gorm:"type:varchar(32);default:new" json:"status"`
	CreatedAt time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Application statuses shared by job and partner applications.
const (
	ApplicationStatusSubmitted = "submitted"
	ApplicationStatusReviewing = "reviewing"
	ApplicationStatusAccepted  = "accepted"
	ApplicationStatusRejected  = "rejected"
)

// JobApplication is a submitted job application.
type JobApplication struct {
	ID          string    `gorm:"primaryKey;type:uuid" json:"id"`
	Position    string    `gorm:"not null;type:varchar(255)" json:"position"`
	Name        string    `gorm:"not null;type:varchar(255)" json:"name"`
	Email       string    `gorm:"not null;index" json:"email"`
	Phone       string    `gorm:"type:varchar(64)" json:"phone,omitempty"`
	ResumeURL   string    `gorm:"type:varchar(512)" json:"resume_url,omitempty"`
	CoverLetter string    `gorm:"not null;type:text" json:"cover_letter"`
	Status      string    `gorm:"type:varchar(32);default:submitted" json:"status"`
	CreatedAt   time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// PartnerApplication is a marketplace partner application.
type PartnerApplication struct {
	ID          string    `gorm:"primaryKey;type:uuid" json:"id"`
	Company     string    `gorm:"not null;type:varchar(255)" json:"company"`
	ContactName string    `gorm:"not null;type:varchar(255)" json:"contact_name"`
	Email       string    `gorm:"not null;index" json:"email"`
	Website     string    `gorm:"type:varchar(512)" json:"website,omitempty"`
	Tier        string    `gorm:"type:varchar(64)" json:"tier,omitempty"`
	Message     string    `gorm:"type:text" json:"message,omitempty"`
	Status      string    `gorm:"type:varchar(32);default:submitted" json:"status"`
	CreatedAt   time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Directory listing statuses.
const (
	ListingStatusPending  = "pending"
	ListingStatusApproved = "approved"
	ListingStatusRejected = "rejected"
)

// DirectoryListing is a business listing submitted to the directory.
type DirectoryListing struct {
	ID          string    `gorm:"primaryKey;type:uuid" json:"id"`
	Name        string    `gorm:"not null;type:varchar(255)" json:"name"`
	Website     string    `gorm:"not null;type:varchar(512)" json:"website"`
	Category    string    `gorm:"not null;index;type:varchar(128)" json:"category"`
	Description string    `gorm:"type:text" json:"description,omitempty"`
	Email       string    `gorm:"type:varchar(255)" json:"email,omitempty"`
	Status      string    `gorm:"type:varchar(32);default:pending;index" json:"status"`
	CreatedAt   time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// ChatSession is one support chat conversation.
type ChatSession struct {
	ID        string        `gorm:"primaryKey;type:uuid" json:"id"`
	VisitorID string        `gorm:"index;type:uuid" json:"visitor_id,omitempty"`
	Email     string        `gorm:"type:varchar(255)" json:"email,omitempty"`
	Topic     string        `gorm:"type:varchar(255)" json:"topic,omitempty"`
	StartedAt time.Time     `gorm:"not null" json:"started_at"`
	EndedAt   *time.Time    `gorm:"" json:"ended_at,omitempty"`
	Messages  []ChatMessage `gorm:"foreignKey:SessionID" json:"messages,omitempty"`
}

// Chat message roles.
const (
	ChatRoleVisitor = "visitor"
	ChatRoleAgent   = "agent"
)

// ChatMessage is one message within a chat session.
type ChatMessage struct {
	ID        string    `gorm:"primaryKey;type:uuid" json:"id"`
	SessionID string    `gorm:"not null;index;type:uuid" json:"session_id"`
	Role      string    `gorm:"not null;type:varchar(16)" json:"role"`
	Body      string    `gorm:"not null;type:text" json:"body"`
	CreatedAt time.Time `gorm:"not null" json:"created_at"`
}

// VisitorSession is a tracked website visit plus its enrichment.
type VisitorSession struct {
	ID           string    `gorm:"primaryKey;type:uuid" json:"id"`
	Domain       string    `gorm:"not null;index;type:varchar(255)" json:"domain"`
	UserAgent    string    `gorm:"type:varchar(512)" json:"user_agent,omitempty"`
	Referrer     string    `gorm:"type:varchar(512)" json:"referrer,omitempty"`
	Hostname     string    `gorm:"type:varchar(255)" json:"hostname,omitempty"`
	Channel      string    `gorm:"type:varchar(32)" json:"channel,omitempty"`
	IsBot        bool      `gorm:"not null;default:false" json:"is_bot"`
	CompanyGuess string    `gorm:"type:varchar(255)" json:"company_guess,omitempty"`
	FirstSeen    time.Time `gorm:"not null" json:"first_seen"`
	LastSeen     time.Time `gorm:"not null" json:"last_seen"`
}

// ChangelogEntry is one published product changelog item.
type ChangelogEntry struct {
	ID          string    `gorm:"primaryKey;type:uuid" json:"id"`
	Title       string    `gorm:"not null;type:varchar(255)" json:"title"`
	Body        string    `gorm:"not null;type:text" json:"body"`
	Tag         string    `gorm:"type:varchar(64);index" json:"tag,omitempty"`
	PublishedAt time.Time `gorm:"not null;index" json:"published_at"`
	CreatedAt   time.Time `gorm:"not null" json:"created_at"`
}

// HealthAlert is one raised incident for a monitored check.
type HealthAlert struct {
	ID         string     `gorm:"primaryKey;type:uuid"`
	CheckName  string     `gorm:"not null;index"`
	Message    string     `gorm:"type:text"`
	RaisedAt   time.Time  `gorm:"not null"`
	ResolvedAt *time.Time `gorm:"index"`
}

// AuditJob is the persisted form of an audit job.
type AuditJob struct {
	ID              string `gorm:"primaryKey;type:uuid"`
	StartURL        string `gorm:"not null;type:varchar(512)"`
	Status          string `gorm:"not null;index;type:varchar(32)"`
	ErrorText       string `gorm:"type:text"`
	MaxPages        int
	MaxDepth        int
	BudgetSeconds   int
	HeadlessAllowed bool
	PagesSucceeded  int
	PagesFailed     int
	SubmittedAt     time.Time `gorm:"not null"`
	StartedAt       *time.Time
	FinishedAt      *time.Time
}

// AuditPage is one audited page row plus its extracted SEO signals.
type AuditPage struct {
	ID               uint   `gorm:"primaryKey;autoIncrement"`
	JobID            string `gorm:"not null;index;type:uuid"`
	URL              string `gorm:"not null;type:varchar(1024)"`
	Depth            int
	StatusCode       int
	UsedHeadless     bool
	FetchedAt        time.Time `gorm:"not null"`
	DurationMs       int64
	ContentHash      string `gorm:"type:varchar(64)"`
	BlobURI          string `gorm:"type:varchar(512)"`
	Title            string `gorm:"type:varchar(512)"`
	TitleLength      int
	MetaDescription  string `gorm:"type:text"`
	H1Count          int
	Canonical        string `gorm:"type:varchar(1024)"`
	Noindex          bool
	WordCount        int
	InternalLinks    int
	ExternalLinks    int
	ImagesMissingAlt int
}
