package launcher

import (
	"os"
	"path/filepath"

	"github.com/core-tools/hsu-launcher/pkg/apps"
	"github.com/core-tools/hsu-launcher/pkg/certs"
	"github.com/core-tools/hsu-launcher/pkg/config"
	"github.com/core-tools/hsu-launcher/pkg/errors"
	"github.com/core-tools/hsu-launcher/pkg/logging"
	"github.com/core-tools/hsu-launcher/pkg/network"
	"github.com/core-tools/hsu-launcher/pkg/state"
	"github.com/core-tools/hsu-launcher/pkg/updates"
)

const defaultPort = 9999

// Launcher wires the state root, config store, network resolver and
// certificate machinery behind the operations the CLI exposes
type Launcher struct {
	root     *state.Root
	store    *config.Store
	resolver *network.Resolver
	apps     *apps.Manager
	logger   logging.Logger
}

func New(root *state.Root, logger logging.Logger) (*Launcher, error) {
	if err := root.Init(); err != nil {
		return nil, err
	}

	store := config.NewStore(root, logger)
	return &Launcher{
		root:     root,
		store:    store,
		resolver: network.NewResolver(logger),
		apps:     apps.NewManager(root, store, logger),
		logger:   logger,
	}, nil
}

// Store exposes the config store for read-side composition
func (l *Launcher) Store() *config.Store {
	return l.store
}

// AddOptions collects the attributes of a new run config. Zero values are
// filled with defaults: the name derives from the application's product
// name, the port is the first free one from the default upward, the host
// comes from the global defaults file.
type AddOptions struct {
	Name           string
	AppPath        string
	Port           int
	Host           string
	Secure         bool
	Password       string
	ROPassword     string
	CustomNames    []string
	SeparateConfig bool
	Channel        config.UpdateChannel
	Force          bool

	// Imported certificate material; Secure is implied when set
	CertificateFile string
	KeyFile         string
	ChainFile       string
}

// Add creates a run config with its launcher script and, when secure, its
// certificate material
func (l *Launcher) Add(options AddOptions) (*config.RunConfig, error) {
	appPath, err := filepath.Abs(options.AppPath)
	if err != nil {
		return nil, errors.NewIOError("failed to resolve application path", err).WithContext("app_path", options.AppPath)
	}

	info, err := apps.ReadProductInfo(appPath)
	if err != nil {
		l.logger.Warnf("Application has no readable product descriptor, path: %s, error: %v", appPath, err)
		info = nil
	}

	name := options.Name
	if name == "" {
		if info == nil {
			return nil, errors.NewValidationError("config name required when the application has no product descriptor", nil)
		}
		name = config.MakeConfigName(info.Name)
	}

	host, err := l.resolveHost(options.Host)
	if err != nil {
		return nil, err
	}

	port := options.Port
	if port == 0 {
		if port, err = l.pickFreePort(); err != nil {
			return nil, err
		}
	}

	channel := options.Channel
	if channel == "" {
		channel = config.UpdateChannelUnknown
	}

	rc := &config.RunConfig{
		Name:           name,
		AppPath:        appPath,
		Port:           port,
		Host:           host,
		Password:       options.Password,
		ROPassword:     options.ROPassword,
		CustomNames:    options.CustomNames,
		SeparateConfig: options.SeparateConfig,
		UpdateChannel:  channel,
	}
	if info != nil {
		rc.LastVersion = info.Version
	}

	secure := options.Secure || options.CertificateFile != ""
	if secure {
		token, err := config.GenerateToken(config.DefaultTokenLength)
		if err != nil {
			return nil, err
		}
		rc.Token = token
	}

	if err := l.store.Create(rc, options.Force); err != nil {
		return nil, err
	}

	if options.CertificateFile != "" {
		if err := l.importCertificate(rc, options.CertificateFile, options.KeyFile, options.ChainFile); err != nil {
			l.discardPartialConfig(rc.Name)
			return nil, err
		}
	}

	if err := l.rebuildMaterial(rc); err != nil {
		l.discardPartialConfig(rc.Name)
		return nil, err
	}
	return rc, nil
}

// discardPartialConfig removes a record whose derived material could not be
// produced, so a secure config never survives without its certificate slot.
func (l *Launcher) discardPartialConfig(name string) {
	if err := l.store.Delete(name); err != nil {
		l.logger.Warnf("Failed to discard partially created run config, name: %s, error: %v", name, err)
	}
}

// EditOptions carries the changeable attributes of an existing config. Nil
// pointers leave the attribute as it is.
type EditOptions struct {
	Port           *int
	Host           *string
	Password       *string
	ROPassword     *string
	CustomNames    *[]string
	SeparateConfig *bool
	Channel        *config.UpdateChannel
}

// Edit applies attribute changes and regenerates the derived material
func (l *Launcher) Edit(name string, options EditOptions) (*config.RunConfig, error) {
	rc, err := l.store.Load(name)
	if err != nil {
		return nil, err
	}

	if options.Port != nil {
		rc.Port = *options.Port
	}
	if options.Host != nil {
		host, err := l.resolveHost(*options.Host)
		if err != nil {
			return nil, err
		}
		rc.Host = host
	}
	if options.Password != nil {
		rc.Password = *options.Password
	}
	if options.ROPassword != nil {
		rc.ROPassword = *options.ROPassword
	}
	if options.CustomNames != nil {
		rc.CustomNames = *options.CustomNames
	}
	if options.SeparateConfig != nil {
		rc.SeparateConfig = *options.SeparateConfig
	}
	if options.Channel != nil {
		rc.UpdateChannel = *options.Channel
	}

	if err := l.store.Update(rc); err != nil {
		return nil, err
	}
	if err := l.rebuildMaterial(rc); err != nil {
		return nil, err
	}
	return rc, nil
}

// Show loads a config for display
func (l *Launcher) Show(name string) (*config.RunConfig, error) {
	return l.store.Load(name)
}

// List returns the configs matching the pattern
func (l *Launcher) List(pattern string) (map[string]*config.RunConfig, error) {
	return l.store.List(pattern)
}

// Rename moves a config to a new name and regenerates the launcher script,
// whose embedded paths change with the directory
func (l *Launcher) Rename(oldName, newName string) error {
	if err := l.store.Rename(oldName, newName); err != nil {
		return err
	}

	rc, err := l.store.Load(newName)
	if err != nil {
		return err
	}
	return l.rebuildMaterial(rc)
}

// Remove deletes a config; with cascade the application tree goes too once
// no other config references it
func (l *Launcher) Remove(name string, cascade bool) error {
	rc, err := l.store.Load(name)
	if err != nil {
		return err
	}

	if err := l.store.Delete(name); err != nil {
		return err
	}

	if cascade {
		return l.apps.RemoveIfUnreferenced(rc.AppPath)
	}
	return nil
}

// Rebuild regenerates the launcher script, TLS properties and, for a
// secure config without imported material, the certificate
func (l *Launcher) Rebuild(name string) error {
	rc, err := l.store.Load(name)
	if err != nil {
		return err
	}
	return l.rebuildMaterial(rc)
}

// CheckUpdate reports the newest version the config's channel admits.
// Nothing is installed here; package downloads stay out of scope.
func (l *Launcher) CheckUpdate(name string) (string, bool, error) {
	rc, err := l.store.Load(name)
	if err != nil {
		return "", false, err
	}

	info, err := apps.ReadProductInfo(rc.AppPath)
	if err != nil {
		return "", false, err
	}

	catalog, err := updates.LoadCatalog(l.root.CatalogFile())
	if err != nil {
		return "", false, err
	}

	var available []string
	for _, entry := range catalog.Products {
		if entry.Name == info.Name {
			available = append(available, entry.Version)
		}
	}

	resolver := updates.NewResolver(catalog, l.logger)
	version, ok := resolver.LatestFrom(rc, info.Name, available)
	return version, ok, nil
}

// InstallCertificate secures a config with certificate material, generating
// an access token first when needed. With certificate and key files it
// imports them, completing a missing chain by following the certificate's
// issuer URLs; without files it issues a fresh leaf from the shared
// authority.
func (l *Launcher) InstallCertificate(name, certificateFile, keyFile, chainFile string) error {
	rc, err := l.store.Load(name)
	if err != nil {
		return err
	}

	if certificateFile == "" && keyFile != "" {
		return errors.NewValidationError("certificate key file given without a certificate file", nil)
	}
	if certificateFile != "" && keyFile == "" {
		return errors.NewValidationError("certificate file given without a key file", nil)
	}

	if !rc.IsSecure() {
		token, err := config.GenerateToken(config.DefaultTokenLength)
		if err != nil {
			return err
		}
		rc.Token = token
		l.logger.Infof("Securing run config for certificate install, name: %s", name)
	}

	if certificateFile != "" {
		if err := l.importCertificate(rc, certificateFile, keyFile, chainFile); err != nil {
			return err
		}
	}

	if err := l.store.Update(rc); err != nil {
		return err
	}
	return l.rebuildMaterial(rc)
}

func (l *Launcher) importCertificate(rc *config.RunConfig, certificateFile, keyFile, chainFile string) error {
	certPEM, err := os.ReadFile(certificateFile)
	if err != nil {
		return errors.NewIOError("failed to read certificate file", err).WithContext("path", certificateFile)
	}
	keyPEM, err := os.ReadFile(keyFile)
	if err != nil {
		return errors.NewIOError("failed to read key file", err).WithContext("path", keyFile)
	}

	var chainPEM []byte
	if chainFile != "" {
		if chainPEM, err = os.ReadFile(chainFile); err != nil {
			return errors.NewIOError("failed to read chain file", err).WithContext("path", chainFile)
		}
	} else {
		certificates, err := certs.ParseCertificatesPEM(certPEM)
		if err != nil {
			return err
		}
		resolver := certs.NewChainResolver(l.logger)
		if chainPEM, err = resolver.Resolve(certificates); err != nil {
			return err
		}
	}

	names := l.resolver.CertificateNames(rc.Host, rc.CustomNames)
	if _, err := certs.Import(l.store.CertDir(rc.Name), certPEM, keyPEM, chainPEM, names, l.logger); err != nil {
		return err
	}

	rc.Certificate = certs.LeafCertificateName
	rc.CertificateKey = certs.LeafKeyName
	rc.CertificateChain = certs.ChainName
	return l.store.Update(rc)
}

// rebuildMaterial regenerates everything derived from the config record:
// certificate (for self-issued secure configs), TLS properties and the
// launcher script
func (l *Launcher) rebuildMaterial(rc *config.RunConfig) error {
	if rc.IsSecure() {
		material, err := l.ensureCertificate(rc)
		if err != nil {
			return err
		}

		properties := config.BuildSSLProperties(material.CertificateFile, material.KeyFile, material.ChainFile)
		if err := state.WriteFileAtomic(config.SSLPropertiesPath(l.store.Dir(rc.Name)), properties, 0600); err != nil {
			return err
		}
	}

	info, err := apps.ReadProductInfo(rc.AppPath)
	if err != nil {
		info = nil
	}
	return l.store.WriteRunScript(rc, apps.LauncherPath(rc.AppPath, info))
}

// ensureCertificate returns the config's certificate material, issuing a
// fresh leaf when the slot is empty or no longer covers the required names.
// Imported material is never replaced implicitly.
func (l *Launcher) ensureCertificate(rc *config.RunConfig) (*certs.Material, error) {
	certDir := l.store.CertDir(rc.Name)
	names := l.resolver.CertificateNames(rc.Host, rc.CustomNames)

	if material, err := certs.LoadMaterial(certDir); err == nil {
		if rc.HasImportedCertificate() {
			return material, nil
		}
		covered, err := certs.Covers(material.CertificateFile, names)
		if err == nil && covered {
			return material, nil
		}
		l.logger.Infof("Certificate no longer covers required names, reissuing, name: %s", rc.Name)
	}

	authority, err := certs.LoadOrCreateAuthority(l.root.SSLDir(), l.logger)
	if err != nil {
		return nil, err
	}
	return certs.NewIssuer(authority, l.logger).Issue(certDir, names)
}

func (l *Launcher) resolveHost(host string) (string, error) {
	if host != "" {
		return host, nil
	}

	defaults, err := l.root.LoadDefaults()
	if err != nil {
		return "", err
	}
	return defaults.ResolveHost(""), nil
}

// pickFreePort returns the first port from the default upward not taken by
// another config
func (l *Launcher) pickFreePort() (int, error) {
	used, err := l.store.UsedPorts()
	if err != nil {
		return 0, err
	}

	taken := make(map[int]bool, len(used))
	for _, port := range used {
		taken[port] = true
	}

	for port := defaultPort; port <= 65535; port++ {
		if !taken[port] {
			return port, nil
		}
	}
	return 0, errors.NewConflictError("no free port available", nil)
}
