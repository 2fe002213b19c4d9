package slack

// ToRosterEntry is exported for testing member filtering
var ToRosterEntry = toRosterEntry
