package config

import (
	"bytes"
	"strconv"

	"gopkg.in/ini.v1"

	"github.com/core-tools/hsu-launcher/pkg/errors"
)

// INI section and key names of the on-disk record. New keys may be added in
// later versions; decodeRunConfig treats missing keys as zero values so old
// on-disk configs remain loadable after schema additions.
const (
	sectionApp      = "APP"
	sectionServer   = "SERVER"
	sectionSSL      = "SSL"
	sectionPassword = "PASSWORDS"
	sectionData     = "DATA"
	sectionUpdate   = "UPDATE"
	sectionNames    = "FQDNS"

	keyPath           = "PATH"
	keyPort           = "PORT"
	keyHost           = "HOST"
	keyToken          = "TOKEN"
	keyCertificate    = "CERTIFICATE_FILE"
	keyCertificateKey = "KEY_FILE"
	keyChain          = "CHAIN_FILE"
	keyPassword       = "PASSWORD"
	keyROPassword     = "RO_PASSWORD"
	keySeparateConfig = "SEPARATE_CONFIG"
	keyChannel        = "CHANNEL"
	keyLastVersion    = "LAST_VERSION"
	keyNames          = "FQDNS"
)

func encodeRunConfig(rc *RunConfig) ([]byte, error) {
	file := ini.Empty()

	file.Section(sectionApp).Key(keyPath).SetValue(rc.AppPath)

	server := file.Section(sectionServer)
	server.Key(keyPort).SetValue(strconv.Itoa(rc.Port))
	server.Key(keyHost).SetValue(rc.Host)

	if rc.IsSecure() {
		ssl := file.Section(sectionSSL)
		ssl.Key(keyToken).SetValue(rc.Token)
		if rc.HasImportedCertificate() {
			ssl.Key(keyCertificate).SetValue(rc.Certificate)
			ssl.Key(keyCertificateKey).SetValue(rc.CertificateKey)
			ssl.Key(keyChain).SetValue(rc.CertificateChain)
		}
	}

	if rc.IsPasswordProtected() {
		passwords := file.Section(sectionPassword)
		passwords.Key(keyPassword).SetValue(rc.Password)
		passwords.Key(keyROPassword).SetValue(rc.ROPassword)
	}

	if rc.SeparateConfig {
		file.Section(sectionData).Key(keySeparateConfig).SetValue("true")
	}

	update := file.Section(sectionUpdate)
	update.Key(keyChannel).SetValue(string(rc.UpdateChannel))
	if rc.LastVersion != "" {
		update.Key(keyLastVersion).SetValue(rc.LastVersion)
	}

	if len(rc.CustomNames) > 0 {
		file.Section(sectionNames).Key(keyNames).SetValue(rc.CustomNamesValue())
	}

	var buf bytes.Buffer
	if _, err := file.WriteTo(&buf); err != nil {
		return nil, errors.NewIOError("failed to encode run config", err).WithContext("name", rc.Name)
	}
	return buf.Bytes(), nil
}

func decodeRunConfig(name string, data []byte) (*RunConfig, error) {
	file, err := ini.Load(data)
	if err != nil {
		return nil, errors.NewIOError("failed to parse run config", err).WithContext("name", name)
	}

	server := file.Section(sectionServer)
	port, err := server.Key(keyPort).Int()
	if err != nil {
		return nil, errors.NewValidationError("run config has a malformed port", err).WithContext("name", name)
	}

	ssl := file.Section(sectionSSL)
	update := file.Section(sectionUpdate)

	channel := UpdateChannel(update.Key(keyChannel).String())
	switch channel {
	case UpdateChannelTested, UpdateChannelNotTested:
	default:
		channel = UpdateChannelUnknown
	}

	return &RunConfig{
		Name:             name,
		AppPath:          file.Section(sectionApp).Key(keyPath).String(),
		Port:             port,
		Host:             server.Key(keyHost).String(),
		Token:            ssl.Key(keyToken).String(),
		Password:         file.Section(sectionPassword).Key(keyPassword).String(),
		ROPassword:       file.Section(sectionPassword).Key(keyROPassword).String(),
		SeparateConfig:   file.Section(sectionData).Key(keySeparateConfig).MustBool(false),
		CustomNames:      ParseCustomNames(file.Section(sectionNames).Key(keyNames).String()),
		UpdateChannel:    channel,
		LastVersion:      update.Key(keyLastVersion).String(),
		Certificate:      ssl.Key(keyCertificate).String(),
		CertificateKey:   ssl.Key(keyCertificateKey).String(),
		CertificateChain: ssl.Key(keyChain).String(),
	}, nil
}
