package daemon

import (
	"io"

	"github.com/cochaviz/apkforge/internal/archive"
	"github.com/cochaviz/apkforge/internal/artifacts"
	"github.com/cochaviz/apkforge/internal/build"
)

const DefaultAddress = "http://127.0.0.1:8080"

// Routes served by Server.
const (
	RouteHealth   = "/health"
	RouteBuild    = "/api/build"
	RouteCancel   = "/api/build/cancel"
	RouteClear    = "/api/build/clear"
	RouteArtifact = "/api/build/artifact"
	RouteEvents   = "/api/build/events"
)

// Multipart form fields accepted by POST /api/build.
const (
	FieldArchive     = "archive"
	FieldIcon        = "icon"
	FieldAppName     = "appName"
	FieldPackageID   = "packageId"
	FieldEnableAdMob = "enableAdMob"
	FieldAdMobID     = "adMobId"
)

// Builder is the controller surface exposed over HTTP.
type Builder interface {
	StartBuild(config build.BuildConfig) error
	CancelBuild()
	ClearLogs()
	Snapshot() build.Snapshot
	OpenArtifact() (io.ReadCloser, artifacts.Artifact, error)
	Subscribe(buffer int) (<-chan build.Event, func())
}

// StartRequest is the client-side form of a build submission.
type StartRequest struct {
	Archive     *archive.File
	Icon        *archive.File
	AppName     string
	PackageID   string
	EnableAdMob bool
	AdMobID     string
}

type errorResponse struct {
	Error string `json:"error"`
}

type healthResponse struct {
	Status string `json:"status"`
}
