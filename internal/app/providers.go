package app

import (
	"context"

	"github.com/opsframe/meetbridge/internal/config"
	"github.com/opsframe/meetbridge/pkg/sttadapter"
	"github.com/opsframe/meetbridge/pkg/sttadapter/azure"
	"github.com/opsframe/meetbridge/pkg/sttadapter/deepgram"
	"github.com/opsframe/meetbridge/pkg/sttadapter/google"
	"github.com/opsframe/meetbridge/pkg/sttadapter/mock"
	"github.com/opsframe/meetbridge/pkg/sttadapter/whisper"
	"google.golang.org/api/option"
)

// registerBuiltinProviders registers the STT adapter factories that ship
// with meetbridge. Each factory maps a config.ProviderEntry onto the
// adapter constructor's own option set.
func registerBuiltinProviders(reg *config.Registry) {
	reg.RegisterSTT("deepgram", func(e config.ProviderEntry) (sttadapter.Adapter, error) {
		opts := []deepgram.Option{}
		if e.Model != "" {
			opts = append(opts, deepgram.WithModel(e.Model))
		}
		if e.Language != "" {
			opts = append(opts, deepgram.WithLanguage(e.Language))
		}
		return deepgram.New(e.APIKey, opts...)
	})

	reg.RegisterSTT("azure", func(e config.ProviderEntry) (sttadapter.Adapter, error) {
		opts := []azure.Option{}
		if e.Language != "" {
			opts = append(opts, azure.WithLanguage(e.Language))
		}
		if e.BaseURL != "" {
			opts = append(opts, azure.WithEndpoint(e.BaseURL))
		}
		return azure.New(e.APIKey, e.Region, opts...)
	})

	reg.RegisterSTT("whisper", func(e config.ProviderEntry) (sttadapter.Adapter, error) {
		opts := []whisper.Option{}
		if e.Language != "" {
			opts = append(opts, whisper.WithLanguage(e.Language))
		}
		return whisper.New(e.Model, opts...)
	})

	reg.RegisterSTT("google", func(e config.ProviderEntry) (sttadapter.Adapter, error) {
		opts := []google.Option{}
		if e.Model != "" {
			opts = append(opts, google.WithModel(e.Model))
		}
		if e.Language != "" {
			opts = append(opts, google.WithLanguageCode(e.Language))
		}
		if e.Region != "" {
			opts = append(opts, google.WithRegion(e.Region))
		}
		projectID, _ := e.Options["project_id"].(string)
		var clientOpts []option.ClientOption
		if e.APIKey != "" {
			clientOpts = append(clientOpts, option.WithAPIKey(e.APIKey))
		}
		return google.New(context.Background(), projectID, clientOpts, opts...)
	})

	// mock is wired for tests and local smoke runs; it is not a real
	// transcription provider.
	reg.RegisterSTT("mock", func(e config.ProviderEntry) (sttadapter.Adapter, error) {
		return &mock.Adapter{}, nil
	})
}
