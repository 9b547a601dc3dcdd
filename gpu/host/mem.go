package host

// fallbackMemory is reported when the OS cannot be asked.
const fallbackMemory = 4 << 30
