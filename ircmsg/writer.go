package ircmsg

// Outbound line formatters. Every command the session state machine
// sends is built here so the mandatory "\r\n" wire terminator has
// exactly one place it's appended.

// FormatNick renders "NICK <nick>\r\n".
func FormatNick(nick string) string { return "NICK " + nick + "\r\n" }

// FormatUser renders "USER <user> * * :<realname>\r\n".
func FormatUser(user, realname string) string {
	return "USER " + user + " * * :" + realname + "\r\n"
}

// FormatJoin renders "JOIN <channel>\r\n".
func FormatJoin(channel string) string { return "JOIN " + channel + "\r\n" }

// FormatPong renders "PONG <params>\r\n".
func FormatPong(params string) string { return "PONG " + params + "\r\n" }

// FormatPing renders "PING <target>\r\n".
func FormatPing(target string) string { return "PING " + target + "\r\n" }

// FormatPrivmsg renders "PRIVMSG <target> :<text>\r\n".
func FormatPrivmsg(target, text string) string {
	return "PRIVMSG " + target + " :" + text + "\r\n"
}
