package db

// Provider abstracts the low-level key-value operations under the block
// catalog. It allows the catalog to work with different database backends
// without knowing the specific implementation details.
//
// Every write is durable by the time the call returns: implementations must
// sync to stable storage on Put and Delete. The catalog's crash consistency
// contract is built on that property.
type Provider interface {
	// Get retrieves a value by key. Returns (nil, nil) when the key is
	// absent.
	Get(key []byte) ([]byte, error)

	// Put durably stores a key-value pair.
	Put(key, value []byte) error

	// Delete durably removes a key-value pair. Deleting an absent key is
	// not an error.
	Delete(key []byte) error

	// Has checks if a key exists.
	Has(key []byte) (bool, error)

	// IteratePrefix iterates over all key-value pairs with the given
	// prefix in ascending key order. The callback returns false to stop
	// iteration early.
	IteratePrefix(prefix []byte, callback func(key, value []byte) bool) error

	// Close closes the database.
	Close() error
}
