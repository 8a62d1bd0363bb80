package badger

import "fmt"

// Key prefixes for different record types
const (
	collectionPrefix      = "col"
	collectionNamePrefix  = "colname"
	itemPrefix            = "itm"
	itemCollectionPrefix  = "itmcol"
	versionPrefix         = "ver"
	versionItemPrefix     = "veritm"
	propertyGroupPrefix   = "pgrp"
	constraintGroupPrefix = "cgrp"
	cacheEntryPrefix      = "cache"
)

func makeCollectionKey(id string) []byte {
	return []byte(fmt.Sprintf("%s:%s", collectionPrefix, id))
}

func makeCollectionNameKey(name string) []byte {
	return []byte(fmt.Sprintf("%s:%s", collectionNamePrefix, name))
}

func makeItemKey(id string) []byte {
	return []byte(fmt.Sprintf("%s:%s", itemPrefix, id))
}

// makeItemCollectionKey indexes items by collection.
// Format: prefix:collectionID:itemID
func makeItemCollectionKey(collectionID, itemID string) []byte {
	return []byte(fmt.Sprintf("%s:%s:%s", itemCollectionPrefix, collectionID, itemID))
}

func makePartialItemCollectionKey(collectionID string) []byte {
	return []byte(fmt.Sprintf("%s:%s:", itemCollectionPrefix, collectionID))
}

func makeVersionKey(id string) []byte {
	return []byte(fmt.Sprintf("%s:%s", versionPrefix, id))
}

// makeVersionItemKey indexes versions by item.
// Format: prefix:itemID:versionID
func makeVersionItemKey(itemID, versionID string) []byte {
	return []byte(fmt.Sprintf("%s:%s:%s", versionItemPrefix, itemID, versionID))
}

func makePartialVersionItemKey(itemID string) []byte {
	return []byte(fmt.Sprintf("%s:%s:", versionItemPrefix, itemID))
}

func makePropertyGroupKey(id string) []byte {
	return []byte(fmt.Sprintf("%s:%s", propertyGroupPrefix, id))
}

func makeConstraintGroupKey(id string) []byte {
	return []byte(fmt.Sprintf("%s:%s", constraintGroupPrefix, id))
}

func makeCacheEntryKey(partition, key string) []byte {
	return []byte(fmt.Sprintf("%s:%s:%s", cacheEntryPrefix, partition, key))
}
