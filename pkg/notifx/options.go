package notifx

import "maps"

// SendOptions are per-send settings a provider may honour. The console
// provider only logs them.
type SendOptions struct {
	// Tags become SES message tags, e.g. project_id and template.
	Tags map[string]string
	// ConfigurationSet is the SES configuration set (event publishing).
	ConfigurationSet string
}

type Option func(*SendOptions)

// WithTags merges tags into the send; later options win on key clashes.
func WithTags(tags map[string]string) Option {
	return func(o *SendOptions) {
		if o.Tags == nil {
			o.Tags = make(map[string]string, len(tags))
		}
		maps.Copy(o.Tags, tags)
	}
}

func WithConfigurationSet(name string) Option {
	return func(o *SendOptions) { o.ConfigurationSet = name }
}

// ApplySendOptions folds opts in order. Providers call it.
func ApplySendOptions(opts []Option) SendOptions {
	var so SendOptions
	for _, apply := range opts {
		apply(&so)
	}
	return so
}
