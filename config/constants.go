package config

const (
	StoreFile = "file"
	StoreMem  = "mem"

	CatalogBolt    = "bolt"
	CatalogLevelDB = "leveldb"
)
