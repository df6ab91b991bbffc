package monitor

import (
	"net"
	"os"
	"strings"
)

// sdNotify sends one state datagram to the service manager. No-op when
// NOTIFY_SOCKET is unset. Abstract socket addresses start with "@".
func sdNotify(state string) {
	sock := os.Getenv("NOTIFY_SOCKET")
	if sock == "" {
		return
	}
	if strings.HasPrefix(sock, "@") {
		sock = "\x00" + sock[1:]
	}

	conn, err := net.DialUnix("unixgram", nil, &net.UnixAddr{Name: sock, Net: "unixgram"})
	if err != nil {
		return
	}
	defer conn.Close()
	conn.Write([]byte(state))
}
