package getm

// part is one fixed-size slice of the object's byte range. Every part
// spans chunkSize bytes except the last, which takes whatever remains.
type part struct {
	index  int
	offset int64
	length int64
}

// planParts splits size bytes into chunkSize parts. A zero-byte object
// yields no parts.
func planParts(size, chunkSize int64) []part {
	if size <= 0 {
		return nil
	}

	count := (size + chunkSize - 1) / chunkSize
	parts := make([]part, count)
	for i := range parts {
		offset := int64(i) * chunkSize
		length := chunkSize
		if offset+length > size {
			length = size - offset
		}
		parts[i] = part{index: i, offset: offset, length: length}
	}
	return parts
}
