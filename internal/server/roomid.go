package server

const (
	roomPrefix    = "chat_"
	roomSeparator = "_"
)

// RoomID names the room shared by two participants. The result does not
// depend on argument order. Usernames cannot contain the separator, so
// distinct pairs never share a room.
func RoomID(a, b string) string {
	if b < a {
		a, b = b, a
	}
	return roomPrefix + a + roomSeparator + b
}
