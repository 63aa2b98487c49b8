package archive

// Key layout:
//
//	dl/<item_id> -> Item JSON
//
// Item ids are time-ordered, so a forward scan over the prefix returns dead
// letters in the order they were queued.

func deadLetterKey(itemID string) []byte {
	return append([]byte("dl/"), itemID...)
}

func deadLetterBounds() (lo, hi []byte) {
	return []byte("dl/"), []byte("dl/\xff")
}
