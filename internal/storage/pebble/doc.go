// Package pebblestore wraps Pebble with the durability policy and key/value
// helpers the archive layer needs.
package pebblestore
