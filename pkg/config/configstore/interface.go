package configstore

// ConfigStore loads a document into out and saves data back to the same
// location.
type ConfigStore interface {
	Load(out any) error
	Save(data any) error
}
