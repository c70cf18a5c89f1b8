package registry

// CreateStoreInput contains the input for registering a store
type CreateStoreInput struct {
	Name           string
	BaseURL        string
	ConsumerKey    string
	ConsumerSecret string
	IsActive       bool
}

// UpdateStoreInput is a partial store update; nil fields stay untouched
type UpdateStoreInput struct {
	Name           *string
	BaseURL        *string
	ConsumerKey    *string
	ConsumerSecret *string
	IsActive       *bool
}
