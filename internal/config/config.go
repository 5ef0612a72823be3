// Package config implements the Configuration contract that parameterizes
// capacity and debug behavior of event delivery. It follows the same
// WithDefaults/validate-once idiom as retention.Config and
// validation.ValidationReport, adapted to a fixed record with optional
// debug fields and a fatal construction-time validation error.
package config

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"sync/atomic"

	"github.com/abhi-agg/glean-go/internal/uploader"
)

// DefaultServerEndpoint is the standard telemetry endpoint used when none
// is supplied.
const DefaultServerEndpoint = "https://incoming.telemetry.example.com"

var debugTagPattern = regexp.MustCompile(`^[a-zA-Z0-9-]{1,20}$`)

// Error wraps a configuration construction failure. Construction is the
// only events-subsystem entry point that raises a fatal error rather than
// logging and continuing.
type Error struct {
	Field   string
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Field, e.Message)
}

// Configuration is the fixed, validated configuration record. Unknown
// options passed to New are rejected by the functional-option signature
// itself (the Go type system, not a map), matching the "reject unknown
// options when building from external input" design note.
type Configuration struct {
	ServerEndpoint    string
	MaxEvents         int
	HTTPClient        uploader.Uploader
	Channel           string
	AppBuild          string
	AppDisplayVersion string
	BuildDate         string
	TestMode          bool
	LogPings          bool
	DebugViewTag      string
	SourceTags        []string

	// uploadEnabled is the one field toggled after construction by a
	// running application (the opt-out switch), read concurrently from
	// whatever goroutine calls Metric.Record and from the events
	// database's actor goroutine. atomic.Bool keeps that race-free
	// without dragging a mutex into every other read of Configuration.
	uploadEnabled atomic.Bool
}

// Option configures a Configuration under construction.
type Option func(*Configuration)

// WithServerEndpoint overrides the default telemetry endpoint.
func WithServerEndpoint(endpoint string) Option {
	return func(c *Configuration) { c.ServerEndpoint = endpoint }
}

// WithMaxEvents sets the capacity that triggers a max_capacity submission
// of the events ping.
func WithMaxEvents(n int) Option {
	return func(c *Configuration) { c.MaxEvents = n }
}

// WithHTTPClient injects the uploader collaborator.
func WithHTTPClient(u uploader.Uploader) Option {
	return func(c *Configuration) { c.HTTPClient = u }
}

// WithChannel sets the opaque release-channel metadata string.
func WithChannel(channel string) Option {
	return func(c *Configuration) { c.Channel = channel }
}

// WithAppBuild sets the opaque app build metadata string.
func WithAppBuild(build string) Option {
	return func(c *Configuration) { c.AppBuild = build }
}

// WithAppDisplayVersion sets the opaque app version metadata string.
func WithAppDisplayVersion(version string) Option {
	return func(c *Configuration) { c.AppDisplayVersion = version }
}

// WithBuildDate sets the opaque build-date metadata string.
func WithBuildDate(date string) Option {
	return func(c *Configuration) { c.BuildDate = date }
}

// WithTestMode allows insecure (non-HTTPS) server endpoints, for tests.
func WithTestMode(testMode bool) Option {
	return func(c *Configuration) { c.TestMode = testMode }
}

// WithLogPings enables a log entry (ping name, reason, event count) for
// each ping about to be submitted.
func WithLogPings(logPings bool) Option {
	return func(c *Configuration) { c.LogPings = logPings }
}

// WithDebugViewTag sets the debug-view tag carried in ping headers.
func WithDebugViewTag(tag string) Option {
	return func(c *Configuration) { c.DebugViewTag = tag }
}

// WithSourceTags sets the source tags carried in ping headers.
func WithSourceTags(tags []string) Option {
	return func(c *Configuration) { c.SourceTags = tags }
}

// New builds and validates a Configuration. Invalid input fails
// construction with a fatal *Error.
func New(opts ...Option) (*Configuration, error) {
	c := &Configuration{
		ServerEndpoint: DefaultServerEndpoint,
		MaxEvents:      1,
	}
	c.uploadEnabled.Store(true)
	for _, opt := range opts {
		opt(c)
	}

	if err := validateEndpoint(c.ServerEndpoint, c.TestMode); err != nil {
		return nil, err
	}
	if c.MaxEvents < 1 {
		return nil, &Error{Field: "MaxEvents", Message: "must be >= 1"}
	}
	if err := validateDebugViewTag(c.DebugViewTag); err != nil {
		return nil, err
	}
	if err := validateSourceTags(c.SourceTags); err != nil {
		return nil, err
	}

	return c, nil
}

func validateEndpoint(endpoint string, testMode bool) error {
	u, err := url.Parse(endpoint)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return &Error{Field: "ServerEndpoint", Message: "must be a valid URL"}
	}
	if !testMode && u.Scheme != "https" {
		return &Error{Field: "ServerEndpoint", Message: "must use HTTPS outside test mode"}
	}
	return nil
}

func validateDebugViewTag(tag string) error {
	if tag == "" {
		return nil
	}
	if !debugTagPattern.MatchString(tag) {
		return &Error{Field: "DebugViewTag", Message: "must match ^[a-zA-Z0-9-]{1,20}$"}
	}
	return nil
}

func validateSourceTags(tags []string) error {
	if len(tags) == 0 {
		return nil
	}
	if len(tags) > 5 {
		return &Error{Field: "SourceTags", Message: "at most 5 items allowed"}
	}
	for _, tag := range tags {
		if strings.HasPrefix(tag, "glean") {
			return &Error{Field: "SourceTags", Message: "item must not begin with 'glean': " + tag}
		}
		if !debugTagPattern.MatchString(tag) {
			return &Error{Field: "SourceTags", Message: "item must match ^[a-zA-Z0-9-]{1,20}$: " + tag}
		}
	}
	return nil
}

// SetDebugViewTag validates and applies a runtime debug-view-tag update.
// On failure the prior tag is left untouched and an error is returned for
// the caller to log.
func (c *Configuration) SetDebugViewTag(tag string) error {
	if err := validateDebugViewTag(tag); err != nil {
		return err
	}
	c.DebugViewTag = tag
	return nil
}

// SetSourceTags validates and applies a runtime source-tags update.
func (c *Configuration) SetSourceTags(tags []string) error {
	if err := validateSourceTags(tags); err != nil {
		return err
	}
	c.SourceTags = tags
	return nil
}

// UploadEnabled reports the current global data-collection switch.
func (c *Configuration) UploadEnabled() bool {
	return c.uploadEnabled.Load()
}

// SetUploadEnabled flips the global upload-enabled switch. Record
// consults this before touching storage, possibly from a different
// goroutine than the one calling SetUploadEnabled.
func (c *Configuration) SetUploadEnabled(enabled bool) {
	c.uploadEnabled.Store(enabled)
}
