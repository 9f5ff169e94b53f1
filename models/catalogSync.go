package models

import "time"

const (
	IntegrationProviderUnityCatalog = "unity_catalog"
)

const (
	IntegrationStatusConnected    = "connected"
	IntegrationStatusDisconnected = "disconnected"
	IntegrationStatusError        = "error"
)

const (
	SyncRunStatusQueued  = "queued"
	SyncRunStatusRunning = "running"
	SyncRunStatusSuccess = "success"
	SyncRunStatusFailed  = "failed"
	SyncRunStatusPartial = "partial"
)

const (
	SyncTriggeredManual = "manual"
	SyncTriggeredRetry  = "retry"
	SyncTriggeredSystem = "system"
	SyncTriggeredCLI    = "cli"
)

// CatalogConnection is one configured external catalog. CatalogGUID is the local
// entity that anchors the catalog's schemas.
type CatalogConnection struct {
	ID                uint       `gorm:"primary_key" json:"id"`
	Provider          string     `gorm:"index;size:50;not null" json:"provider"`
	Owner             string     `gorm:"index;size:100;not null" json:"owner"`
	Status            string     `gorm:"size:20;not null" json:"status"`
	ServerEndpoint    string     `gorm:"size:255;not null" json:"server_endpoint"`
	CatalogName       string     `gorm:"size:255;not null" json:"catalog_name"`
	AuthToken         string     `gorm:"type:text" json:"-"`
	Policy            string     `gorm:"size:20;not null" json:"policy"`
	CatalogGUID       string     `gorm:"size:36" json:"catalog_guid"`
	SettingsJSON      []byte     `gorm:"type:json" json:"settings"`
	LastSyncAt        *time.Time `json:"last_sync_at"`
	LastSuccessSyncAt *time.Time `json:"last_success_sync_at"`
	CreatedAt         time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt         time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

type SyncRun struct {
	ID            uint       `gorm:"primary_key" json:"id"`
	ConnectionId  uint       `gorm:"index;not null" json:"connection_id"`
	Provider      string     `gorm:"index;size:50;not null" json:"provider"`
	Status        string     `gorm:"size:20;not null" json:"status"`
	TriggeredBy   string     `gorm:"size:20" json:"triggered_by"`
	Policy        string     `gorm:"size:20" json:"policy"`
	DryRun        bool       `gorm:"not null;default:false" json:"dry_run"`
	SettingsJSON  []byte     `gorm:"type:json" json:"settings"`
	StatsJSON     []byte     `gorm:"type:json" json:"stats"`
	ActionCount   int        `json:"action_count"`
	MismatchCount int        `json:"mismatch_count"`
	ErrorCount    int        `json:"error_count"`
	ParentRunId   *uint      `gorm:"index" json:"parent_run_id"`
	ReportObject  string     `gorm:"size:255" json:"report_object"`
	StartedAt     *time.Time `json:"started_at"`
	FinishedAt    *time.Time `json:"finished_at"`
	DurationMs    int64      `json:"duration_ms"`
	CreatedAt     time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// SyncRunItem records one classified resource of a run.
type SyncRunItem struct {
	ID            uint      `gorm:"primary_key" json:"id"`
	SyncRunId     uint      `gorm:"index;not null" json:"sync_run_id"`
	ConnectionId  uint      `gorm:"index;not null" json:"connection_id"`
	Kind          string    `gorm:"size:50" json:"kind"`
	FullName      string    `gorm:"size:512" json:"full_name"`
	QualifiedName string    `gorm:"size:512" json:"qualified_name"`
	EntityGUID    string    `gorm:"size:36" json:"entity_guid"`
	Action        string    `gorm:"size:30" json:"action"`
	Reason        string    `gorm:"size:255" json:"reason"`
	Mismatch      bool      `gorm:"not null;default:false" json:"mismatch"`
	Error         string    `gorm:"type:text" json:"error"`
	CreatedAt     time.Time `gorm:"autoCreateTime" json:"created_at"`
}

type SyncError struct {
	ID           uint      `gorm:"primary_key" json:"id"`
	SyncRunId    uint      `gorm:"index;not null" json:"sync_run_id"`
	ConnectionId uint      `gorm:"index;not null" json:"connection_id"`
	Kind         string    `gorm:"size:50" json:"kind"`
	FullName     string    `gorm:"size:512" json:"full_name"`
	Action       string    `gorm:"size:30" json:"action"`
	ErrorCode    string    `gorm:"size:64" json:"error_code"`
	Message      string    `gorm:"type:text" json:"message"`
	Retryable    bool      `gorm:"default:false" json:"retryable"`
	CreatedAt    time.Time `gorm:"autoCreateTime" json:"created_at"`
}
