package catalogsync

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/mmdatafocus/catalogsync_backend/utils"
)

// SyncSettings are the per-connection knobs stored in CatalogConnection.SettingsJSON.
type SyncSettings struct {
	SchemaTemplateGUID string `json:"schemaTemplateGuid"`
	VolumeTemplateGUID string `json:"volumeTemplateGuid"`
	IncludeVolumes     bool   `json:"includeVolumes"`
	PageSize           int    `json:"pageSize" binding:"gte=0,lte=1000"`
}

func DefaultSettings() SyncSettings {
	return SyncSettings{
		IncludeVolumes: true,
	}
}

func DecodeSettings(raw []byte) SyncSettings {
	if len(raw) == 0 {
		return DefaultSettings()
	}
	settings := DefaultSettings()
	if err := json.Unmarshal(raw, &settings); err != nil {
		return DefaultSettings()
	}
	if settings.PageSize < 0 {
		settings.PageSize = 0
	}
	return settings
}

func EncodeSettings(settings SyncSettings) []byte {
	b, _ := json.Marshal(settings)
	return b
}

type ConnectRequest struct {
	ServerEndpoint string `json:"serverEndpoint" binding:"required,url"`
	CatalogName    string `json:"catalogName" binding:"required"`
	Token          string `json:"token"`
	Policy         string `json:"policy"`
}

type UpdateSettingsRequest struct {
	Settings SyncSettings `json:"settings"`
	Policy   *string      `json:"policy"`
}

type TriggerSyncRequest struct {
	DryRun bool `json:"dryRun"`
}

type StatusResponse struct {
	Connection        ConnectionResponse `json:"connection"`
	LastSyncAt        *string            `json:"lastSyncAt"`
	LastSuccessSyncAt *string            `json:"lastSuccessSyncAt"`
	Settings          SyncSettings       `json:"settings"`
	LastRun           *RunSummary        `json:"lastRun"`
}

type ConnectionResponse struct {
	ID             uint    `json:"id"`
	Status         string  `json:"status"`
	ServerEndpoint string  `json:"serverEndpoint"`
	CatalogName    string  `json:"catalogName"`
	Policy         string  `json:"policy"`
	CatalogGUID    string  `json:"catalogGuid"`
	Owner          string  `json:"owner,omitempty"`
	LastSyncAt     *string `json:"lastSyncAt,omitempty"`
}

// RunSummary is the last finished run of a connection, cached in Redis.
type RunSummary struct {
	RunId         uint           `json:"runId"`
	Status        string         `json:"status"`
	DryRun        bool           `json:"dryRun"`
	FinishedAt    *string        `json:"finishedAt"`
	Counts        map[string]int `json:"counts"`
	MismatchCount int            `json:"mismatchCount"`
	ErrorCount    int            `json:"errorCount"`
}

type SyncHistoryResponse struct {
	Items []SyncRunResponse `json:"items"`
}

type SyncRunResponse struct {
	ID            uint           `json:"id"`
	ConnectionId  uint           `json:"connectionId"`
	Status        string         `json:"status"`
	Policy        string         `json:"policy"`
	DryRun        bool           `json:"dryRun"`
	StartedAt     *string        `json:"startedAt"`
	FinishedAt    *string        `json:"finishedAt"`
	DurationMs    int64          `json:"durationMs"`
	ActionCount   int            `json:"actionCount"`
	MismatchCount int            `json:"mismatchCount"`
	ErrorCount    int            `json:"errorCount"`
	Counts        map[string]int `json:"counts"`
	TriggeredBy   string         `json:"triggeredBy"`
	ParentRunId   *uint          `json:"parentRunId"`
	ReportObject  string         `json:"reportObject,omitempty"`
}

type SyncRunDetailResponse struct {
	SyncRunResponse
	Items  []SyncRunItemResponse `json:"items"`
	Errors []SyncErrorResponse   `json:"errors"`
	Report *utils.SignedDownload `json:"report,omitempty"`
}

type SyncRunItemResponse struct {
	Kind          string `json:"kind"`
	FullName      string `json:"fullName"`
	QualifiedName string `json:"qualifiedName"`
	EntityGUID    string `json:"entityGuid"`
	Action        string `json:"action"`
	Reason        string `json:"reason"`
	Mismatch      bool   `json:"mismatch"`
	Error         string `json:"error,omitempty"`
}

type SyncErrorResponse struct {
	ID        uint   `json:"id"`
	Kind      string `json:"kind"`
	FullName  string `json:"fullName"`
	Action    string `json:"action"`
	ErrorCode string `json:"errorCode"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable"`
}

type EntityListResponse struct {
	Items      interface{} `json:"items"`
	NextCursor string      `json:"nextCursor"`
}

type PubSubPushEnvelope struct {
	Message struct {
		Data []byte `json:"data"`
		ID   string `json:"messageId"`
	} `json:"message"`
	Subscription string `json:"subscription"`
}

type SyncPubSubPayload struct {
	RunId        uint `json:"run_id"`
	ConnectionId uint `json:"connection_id"`
}

func StatusCacheKey(connectionId uint) string {
	return "CatalogSync:Status:" + strconv.FormatUint(uint64(connectionId), 10)
}

// ConnectionLockKey is the Redis lock held while a connection is reconciled.
func ConnectionLockKey(connectionId uint) string {
	return "catalogsync:lock:" + strconv.FormatUint(uint64(connectionId), 10)
}

// ReportObjectName is where a run report is archived in the report bucket.
func ReportObjectName(connectionId uint, runId uint) string {
	return fmt.Sprintf("sync-reports/%d/%d.json", connectionId, runId)
}
