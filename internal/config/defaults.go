package config

const (
	defaultConfigPath          = "~/.config/bidsmirror/config.toml"
	defaultWorkDir             = "~/.local/share/bidsmirror/work"
	defaultFailuresDir         = "~/.local/share/bidsmirror/failures"
	defaultLogDir              = "~/.local/share/bidsmirror/logs"
	defaultStateDir            = "~/.local/share/bidsmirror/state"
	defaultCatalogSource       = CatalogSourceDandi
	defaultCatalogBaseURL      = "https://api.dandiarchive.org/api"
	defaultCatalogPageSize     = 100
	defaultCatalogTimeout      = 30
	defaultHostingAPIURL       = "https://api.github.com"
	defaultHostingRawURL       = "https://raw.githubusercontent.com"
	defaultHostingGitURL       = "https://github.com"
	defaultHostingOrganization = "bids-dandisets"
	defaultUpstreamOwner       = "dandisets"
	defaultHostingTimeout      = 30
	defaultHostingRetries      = 4
	defaultMirrorCreateMode    = MirrorCreateFork
	defaultMirrorReadyTimeout  = 120
	defaultMirrorPollInterval  = 2
	defaultMirrorPollMax       = 20
	defaultBranch              = "draft"
	defaultWorkers             = 0
	defaultSessionLimit        = 2
	defaultPrimaryExtension    = ".nwb"
	defaultManifestPath        = "derivatives/bidsmirror/run_manifest.json"
	defaultCommitMessage       = "update"
	defaultAuthorName          = "github-actions[bot]"
	defaultAuthorEmail         = "github-actions[bot]@users.noreply.github.com"
	defaultConverterBinary     = "nwb2bids"
	defaultConverterTimeout    = 3600
	defaultValidatorBinary     = "bids-validator-deno"
	defaultValidatorTimeout    = 900
	defaultSuperDatasetRepo    = "super-dataset"
	defaultLogFormat           = "console"
	defaultLogLevel            = "info"
)

// Catalog sources.
const (
	CatalogSourceDandi = "dandi"
	CatalogSourceFile  = "file"
)

// Mirror creation modes.
const (
	MirrorCreateFork   = "fork"
	MirrorCreateCreate = "create"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			WorkDir:     defaultWorkDir,
			FailuresDir: defaultFailuresDir,
			LogDir:      defaultLogDir,
			StateDir:    defaultStateDir,
		},
		Catalog: Catalog{
			Source:         defaultCatalogSource,
			BaseURL:        defaultCatalogBaseURL,
			PageSize:       defaultCatalogPageSize,
			RequestTimeout: defaultCatalogTimeout,
		},
		Hosting: Hosting{
			APIURL:         defaultHostingAPIURL,
			RawURL:         defaultHostingRawURL,
			GitURL:         defaultHostingGitURL,
			Organization:   defaultHostingOrganization,
			UpstreamOwner:  defaultUpstreamOwner,
			RequestTimeout: defaultHostingTimeout,
			RetryAttempts:  defaultHostingRetries,
		},
		Mirror: Mirror{
			CreateMode:      defaultMirrorCreateMode,
			ReadyTimeout:    defaultMirrorReadyTimeout,
			PollInterval:    defaultMirrorPollInterval,
			PollMaxInterval: defaultMirrorPollMax,
		},
		Run: Run{
			Branch:           defaultBranch,
			Workers:          defaultWorkers,
			SessionLimit:     defaultSessionLimit,
			PrimaryExtension: defaultPrimaryExtension,
			ManifestPath:     defaultManifestPath,
			CommitMessage:    defaultCommitMessage,
			AuthorName:       defaultAuthorName,
			AuthorEmail:      defaultAuthorEmail,
		},
		Converter: Converter{
			Binary:  defaultConverterBinary,
			Timeout: defaultConverterTimeout,
		},
		Validator: Validator{
			Enabled: false,
			Binary:  defaultValidatorBinary,
			Timeout: defaultValidatorTimeout,
		},
		SuperDataset: SuperDataset{
			Repository: defaultSuperDatasetRepo,
			Branch:     defaultBranch,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
