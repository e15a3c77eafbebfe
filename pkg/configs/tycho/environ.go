package tycho

import (
	"strings"

	"github.com/spf13/viper"
)

// Environ is the process environment which tunes how systems are built.
//
// Read it once with LoadEnviron and pass it to whoever needs it.
type Environ struct {
	// DEV_PHASE: "prod", "test" or "stub".
	DevPhase string

	// storage layout of default volumes
	StdNFSPVC      string // STDNFS_PVC
	ParentDir      string // PARENT_DIR
	SubpathDir     string // SUBPATH_DIR. Empty means "the username".
	SharedDir      string // SHARED_DIR
	CreateHomeDirs bool   // CREATE_HOME_DIRS

	AmbassadorID string // AMBASSADOR_ID

	// security context overrides. Empty means "not set".
	NFSRodsUID     string // NFSRODS_UID
	RunAsUser      string // TYCHO_APP_RUN_AS_USER
	RunAsGroup     string // TYCHO_APP_RUN_AS_GROUP
	FSGroup        string // TYCHO_APP_FS_GROUP
	InitRunAsUser  string // INIT_SC_RUN_AS_USER
	InitRunAsGroup string // INIT_SC_RUN_AS_GROUP

	EnableInitContainer bool   // TYCHO_APP_ENABLE_INIT_CONTAINER
	InitImageRepository string // TYCHO_APP_INIT_IMAGE_REPOSITORY
	InitImageTag        string // TYCHO_APP_INIT_IMAGE_TAG
	InitCPUs            string // TYCHO_APP_INIT_CPUS. Empty means "the configured default".
	InitMemory          string // TYCHO_APP_INIT_MEMORY. Empty means "the configured default".
	GPUResourceName     string // TYCHO_APP_GPU_RESOURCE_NAME

	GiteaHost        string // GITEA_HOST
	GiteaUser        string // GITEA_USER
	GiteaServiceName string // GITEA_SERVICE_NAME

	// IROD_HOST. iRODS is enabled when it is set, even if empty.
	IRodsHost    string
	IRodsEnabled bool
	NFSRodsHost  string // NFSRODS_HOST

	Namespace  string // NAMESPACE
	OnMinikube bool   // TYCHO_ON_MINIKUBE

	RestAPI  bool   // REST_API
	TychoURL string // TYCHO_URL

	DockstoreAppsBranch           string // DOCKSTORE_APPS_BRANCH
	ExternalAppRegistryEnabled    bool   // EXTERNAL_TYCHO_APP_REGISTRY_ENABLED
	ExternalAppRegistryConfigured bool   // whether EXTERNAL_TYCHO_APP_REGISTRY_ENABLED is set at all
}

func setEnvironDefaults(v *viper.Viper) {
	v.SetDefault("DEV_PHASE", "prod")
	v.SetDefault("STDNFS_PVC", "stdnfs")
	v.SetDefault("PARENT_DIR", "home")
	v.SetDefault("SHARED_DIR", "shared")
	v.SetDefault("CREATE_HOME_DIRS", "true")
	v.SetDefault("TYCHO_APP_ENABLE_INIT_CONTAINER", "true")
	v.SetDefault("TYCHO_APP_INIT_IMAGE_REPOSITORY", "busybox")
	v.SetDefault("TYCHO_APP_INIT_IMAGE_TAG", "latest")
	v.SetDefault("TYCHO_APP_GPU_RESOURCE_NAME", "nvidia.com/gpu")
	v.SetDefault("GITEA_HOST", " ")
	v.SetDefault("GITEA_USER", " ")
	v.SetDefault("GITEA_SERVICE_NAME", " ")
	v.SetDefault("TYCHO_URL", "http://localhost:5000")
}

// LoadEnviron reads Environ from the process environment.
func LoadEnviron() Environ {
	v := viper.New()
	setEnvironDefaults(v)
	v.AutomaticEnv()

	flag := func(key string) bool {
		return strings.EqualFold(strings.TrimSpace(v.GetString(key)), "true")
	}

	return Environ{
		DevPhase:       v.GetString("DEV_PHASE"),
		StdNFSPVC:      v.GetString("STDNFS_PVC"),
		ParentDir:      v.GetString("PARENT_DIR"),
		SubpathDir:     v.GetString("SUBPATH_DIR"),
		SharedDir:      v.GetString("SHARED_DIR"),
		CreateHomeDirs: flag("CREATE_HOME_DIRS"),

		AmbassadorID: v.GetString("AMBASSADOR_ID"),

		NFSRodsUID:     v.GetString("NFSRODS_UID"),
		RunAsUser:      v.GetString("TYCHO_APP_RUN_AS_USER"),
		RunAsGroup:     v.GetString("TYCHO_APP_RUN_AS_GROUP"),
		FSGroup:        v.GetString("TYCHO_APP_FS_GROUP"),
		InitRunAsUser:  v.GetString("INIT_SC_RUN_AS_USER"),
		InitRunAsGroup: v.GetString("INIT_SC_RUN_AS_GROUP"),

		EnableInitContainer: flag("TYCHO_APP_ENABLE_INIT_CONTAINER"),
		InitImageRepository: v.GetString("TYCHO_APP_INIT_IMAGE_REPOSITORY"),
		InitImageTag:        v.GetString("TYCHO_APP_INIT_IMAGE_TAG"),
		InitCPUs:            v.GetString("TYCHO_APP_INIT_CPUS"),
		InitMemory:          v.GetString("TYCHO_APP_INIT_MEMORY"),
		GPUResourceName:     v.GetString("TYCHO_APP_GPU_RESOURCE_NAME"),

		GiteaHost:        v.GetString("GITEA_HOST"),
		GiteaUser:        v.GetString("GITEA_USER"),
		GiteaServiceName: v.GetString("GITEA_SERVICE_NAME"),

		IRodsHost:    v.GetString("IROD_HOST"),
		IRodsEnabled: v.IsSet("IROD_HOST"),
		NFSRodsHost:  v.GetString("NFSRODS_HOST"),

		Namespace:  v.GetString("NAMESPACE"),
		OnMinikube: flag("TYCHO_ON_MINIKUBE"),

		RestAPI:  flag("REST_API"),
		TychoURL: v.GetString("TYCHO_URL"),

		DockstoreAppsBranch:           v.GetString("DOCKSTORE_APPS_BRANCH"),
		ExternalAppRegistryEnabled:    flag("EXTERNAL_TYCHO_APP_REGISTRY_ENABLED"),
		ExternalAppRegistryConfigured: v.GetString("EXTERNAL_TYCHO_APP_REGISTRY_ENABLED") != "",
	}
}

// DefaultEnviron is Environ of an empty process environment.
func DefaultEnviron() Environ {
	return Environ{
		DevPhase:            "prod",
		StdNFSPVC:           "stdnfs",
		ParentDir:           "home",
		SharedDir:           "shared",
		CreateHomeDirs:      true,
		EnableInitContainer: true,
		InitImageRepository: "busybox",
		InitImageTag:        "latest",
		GPUResourceName:     "nvidia.com/gpu",
		GiteaHost:           " ",
		GiteaUser:           " ",
		GiteaServiceName:    " ",
		TychoURL:            "http://localhost:5000",
	}
}

// IsTest reports DEV_PHASE=test.
func (e Environ) IsTest() bool {
	return e.DevPhase == "test"
}

// IsStub reports DEV_PHASE=stub.
func (e Environ) IsStub() bool {
	return e.DevPhase == "stub"
}
