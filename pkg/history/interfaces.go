package history

// Buffer is a fixed-capacity replay store. Inserts never fail: once full,
// every Record overwrites the logically oldest entry.
type Buffer interface {
	// Record stores a published message, evicting the oldest entry when full.
	Record(sequence uint32, topic, content string)

	// Lookup returns the first entry, in slot order, whose sequence matches.
	// Because sequences are per topic the result may belong to any topic.
	Lookup(sequence uint32) (Entry, bool)

	// LookupTopic returns the entry matching both topic and sequence.
	LookupTopic(topic string, sequence uint32) (Entry, bool)

	// Entries returns live entries ordered oldest to newest.
	Entries() []Entry

	// Len returns the number of live entries.
	Len() int

	// Cap returns the fixed capacity.
	Cap() int
}
