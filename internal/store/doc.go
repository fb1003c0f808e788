package store

// Headers serialization. The headers column stores zero or more
// surviving MQTT v5 user properties as "name=value" pairs joined by a
// single semicolon (constants.HeaderSeparator). Names and values are
// stored without escaping, so a property whose name or value itself
// contains ';' or '=' makes the pair boundaries in the column ambiguous.
// The column is NULL, not an empty string, when a message had no
// surviving properties.
