package app

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/afero"
	"github.com/spf13/viper"

	"github.com/jeremyhahn/go-acme-ca/pkg/acme"
	"github.com/jeremyhahn/go-acme-ca/pkg/acme/challenge"
	"github.com/jeremyhahn/go-acme-ca/pkg/acme/challenge/dns01"
	"github.com/jeremyhahn/go-acme-ca/pkg/acme/challenge/http01"
	"github.com/jeremyhahn/go-acme-ca/pkg/acme/challenge/tlsalpn01"
	"github.com/jeremyhahn/go-acme-ca/pkg/acme/dao"
	aferodao "github.com/jeremyhahn/go-acme-ca/pkg/acme/dao/afero"
	"github.com/jeremyhahn/go-acme-ca/pkg/acme/server/handlers"
	"github.com/jeremyhahn/go-acme-ca/pkg/ca"
	"github.com/jeremyhahn/go-acme-ca/pkg/datastore"
	"github.com/jeremyhahn/go-acme-ca/pkg/logging"
	"github.com/jeremyhahn/go-acme-ca/pkg/webservice"
	"github.com/jeremyhahn/go-acme-ca/pkg/webservice/router"
)

const Name = "acmeca"

// App is the platform configuration file's root object and the
// container for the initialized services.
type App struct {
	ACMEConfig       *acme.Config       `yaml:"acme" json:"acme" mapstructure:"acme"`
	CAConfig         *ca.Config         `yaml:"certificate-authority" json:"certificate_authority" mapstructure:"certificate-authority"`
	ConfigDir        string             `yaml:"config-dir" json:"config_dir" mapstructure:"config-dir"`
	DatastoreConfig  *datastore.Config  `yaml:"datastore" json:"datastore" mapstructure:"datastore"`
	DebugFlag        bool               `yaml:"debug" json:"debug" mapstructure:"debug"`
	LogDir           string             `yaml:"log-dir" json:"log_dir" mapstructure:"log-dir"`
	PlatformDir      string             `yaml:"platform-dir" json:"platform_dir" mapstructure:"platform-dir"`
	WebServiceConfig *webservice.Config `yaml:"webservice" json:"webservice" mapstructure:"webservice"`

	CA          ca.CertificateAuthority `yaml:"-" json:"-" mapstructure:"-"`
	DAOFactory  dao.Factory             `yaml:"-" json:"-" mapstructure:"-"`
	Engine      *challenge.Engine       `yaml:"-" json:"-" mapstructure:"-"`
	Logger      *logging.Logger         `yaml:"-" json:"-" mapstructure:"-"`
	NonceStore  *acme.NonceStore        `yaml:"-" json:"-" mapstructure:"-"`
	RestService handlers.RestServicer   `yaml:"-" json:"-" mapstructure:"-"`
	WebServer   *webservice.WebServer   `yaml:"-" json:"-" mapstructure:"-"`
}

type AppInitParams struct {
	ConfigDir   string
	Debug       bool
	LogDir      string
	PlatformDir string
}

func NewApp() *App {
	return new(App)
}

// Init loads the platform configuration file and brings up the
// logger, datastore, certificate authority, challenge validation
// engine and ACME REST service, in dependency order.
func (app *App) Init(initParams *AppInitParams) error {

	if initParams != nil {
		app.DebugFlag = initParams.Debug
		app.ConfigDir = initParams.ConfigDir
		app.LogDir = initParams.LogDir
		app.PlatformDir = initParams.PlatformDir
	}

	if err := app.initConfig(); err != nil {
		return err
	}
	app.initLogger()

	if err := app.initDAOFactory(); err != nil {
		return err
	}
	if err := app.initCA(); err != nil {
		return err
	}
	if err := app.initACME(); err != nil {
		return err
	}

	var routers []router.WebServiceRouter
	if app.RestService != nil {
		routers = append(routers, router.NewACMERouter(app.RestService))
	}
	app.WebServer = webservice.NewWebServer(
		app.Logger,
		app.CA,
		app.WebServiceConfig,
		routers...)

	return nil
}

// Read and parse the platform configuration file
func (app *App) initConfig() error {

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	if app.ConfigDir != "" {
		viper.AddConfigPath(app.ConfigDir)
	}
	if app.PlatformDir != "" {
		viper.AddConfigPath(fmt.Sprintf("%s/etc", app.PlatformDir))
	}
	viper.AddConfigPath(fmt.Sprintf("$HOME/.%s/", Name))
	viper.AddConfigPath(".")

	if err := viper.ReadInConfig(); err != nil {
		// Run on defaults without a config file
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return err
		}
	}

	if err := viper.Unmarshal(app); err != nil {
		return err
	}

	if app.ACMEConfig == nil {
		serverConfig := acme.DefaultServerConfig
		app.ACMEConfig = &acme.Config{Server: &serverConfig}
	}
	if app.CAConfig == nil {
		caConfig := ca.DefaultConfig
		app.CAConfig = &caConfig
	}
	if app.DatastoreConfig == nil {
		datastoreConfig := datastore.DefaultConfig
		app.DatastoreConfig = &datastoreConfig
	}
	if app.WebServiceConfig == nil {
		webServiceConfig := webservice.DefaultConfig
		app.WebServiceConfig = &webServiceConfig
	}
	return nil
}

func (app *App) initLogger() {
	level := slog.LevelInfo
	if app.DebugFlag {
		level = slog.LevelDebug
	}
	var logFile afero.File
	if app.LogDir != "" {
		fs := afero.NewOsFs()
		if err := fs.MkdirAll(app.LogDir, 0755); err == nil {
			logFile, _ = fs.OpenFile(
				fmt.Sprintf("%s/%s.log", app.LogDir, Name),
				os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
		}
	}
	app.Logger = logging.NewLogger(level, logFile)
}

func (app *App) initDAOFactory() error {
	factory, err := aferodao.NewFactory(app.Logger, app.DatastoreConfig)
	if err != nil {
		return err
	}
	app.DAOFactory = factory
	return nil
}

func (app *App) initCA() error {
	certificateAuthority, err := ca.NewCA(ca.Params{
		Config: app.CAConfig,
		Fs:     afero.NewOsFs(),
		Logger: app.Logger,
	})
	if err != nil {
		return err
	}
	app.CA = certificateAuthority
	return nil
}

func (app *App) initACME() error {

	serverConfig := app.ACMEConfig.Server
	if serverConfig == nil {
		app.Logger.Info("ACME server disabled")
		return nil
	}

	enabled, err := acme.ParseChallenges(serverConfig.Challenges)
	if err != nil {
		return err
	}
	verifiers := make([]challenge.Verifier, 0, len(enabled))
	for _, challengeType := range enabled {
		switch challengeType {
		case acme.ChallengeTypeHTTP01:
			verifiers = append(verifiers,
				http01.NewVerifier(serverConfig.HTTPChallengePort))
		case acme.ChallengeTypeDNS01:
			verifiers = append(verifiers,
				dns01.NewVerifier(serverConfig.DNSResolver))
		case acme.ChallengeTypeTLSALPN01:
			verifiers = append(verifiers,
				tlsalpn01.NewVerifier(serverConfig.TLSALPNChallengePort))
		}
	}

	validatedWindow := time.Duration(serverConfig.AuthzValidTTL) * time.Hour
	app.Engine = challenge.NewEngine(challenge.Params{
		DAOFactory:      app.DAOFactory,
		Logger:          app.Logger,
		Verifiers:       verifiers,
		ValidatedWindow: validatedWindow,
	})

	nonceTTL := time.Duration(serverConfig.NonceTTL) * time.Hour
	if nonceTTL <= 0 {
		nonceTTL = acme.DefaultNonceTTLHours * time.Hour
	}
	app.NonceStore = acme.NewNonceStore(16, nonceTTL)

	restService, err := handlers.NewRestService(&handlers.Params{
		ACMEConfig: app.ACMEConfig,
		CA:         app.CA,
		DAOFactory: app.DAOFactory,
		Engine:     app.Engine,
		Logger:     app.Logger,
		NonceStore: app.NonceStore,
	})
	if err != nil {
		return err
	}
	app.RestService = restService
	return nil
}

// Shutdown stops the background workers.
func (app *App) Shutdown() {
	if app.Engine != nil {
		app.Engine.Close()
	}
	if app.NonceStore != nil {
		app.NonceStore.Close()
	}
}
