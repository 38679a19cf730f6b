package settings

const CmdName = "blackbox"

// Environment surface consumed by the lifecycle manager. The CLI run
// command sets these for the launched process.
const (
	EnvFilePrefix       = "BLACKBOX_FILENAME"
	EnvMaxFileSize      = "BLACKBOX_MAX_FILESIZE"
	EnvMaxFrames        = "BLACKBOX_MAX_FRAMES_PER_SESSION"
	EnvRetention        = "BLACKBOX_NUM_MOST_RECENT_KEEP"
	EnvDefaultLibrary   = "BLACKBOX_DEFAULT_LIB"
	EnvAlternateLibrary = "BLACKBOX_ALTERNATE_LIB"
)

const (
	DefaultFilePrefix = "blackbox_log"

	// DefaultMaxFileSize is 16MiB before a new file is started.
	DefaultMaxFileSize = 16 * 1024 * 1024

	// DefaultMaxFrames is the number of presentation boundaries after
	// which the session is replaced.
	DefaultMaxFrames = 100

	// DefaultRetention of zero keeps the whole log rather than only
	// the most recent per-call files.
	DefaultRetention = 0

	DefaultLibraryName   = "libGL.so"
	AlternateLibraryName = "libGLESv2.so"

	// Extension-query entry points per family.
	DefaultQueryName    = "glXGetProcAddress"
	DefaultQueryNameARB = "glXGetProcAddressARB"
	AlternateQueryName  = "eglGetProcAddress"

	ReportFileName = CmdName + "-report.json"
)
