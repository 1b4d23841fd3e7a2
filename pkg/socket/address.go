/*
 * Copyright 2025 SREDiag Authors
 * Copyright 2023 CloudWeGo Authors
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package socket

import (
	"fmt"
	"net"
	"strconv"
	"strings"
)

// FormatIP renders IPv4 addresses (including IPv4-mapped IPv6 ones) in
// dotted decimal and IPv6 addresses as eight four-digit hex groups without
// zero compression.
func FormatIP(ip net.IP) string {
	if v4 := ip.To4(); v4 != nil {
		return fmt.Sprintf("%d.%d.%d.%d", v4[0], v4[1], v4[2], v4[3])
	}
	v6 := ip.To16()
	if v6 == nil {
		return ""
	}
	var b strings.Builder
	for i := 0; i < net.IPv6len; i += 2 {
		if i > 0 {
			b.WriteByte(':')
		}
		fmt.Fprintf(&b, "%02x%02x", v6[i], v6[i+1])
	}
	return b.String()
}

func splitAddr(addr net.Addr) (string, int, error) {
	switch a := addr.(type) {
	case *net.TCPAddr:
		return FormatIP(a.IP), a.Port, nil
	case *net.UDPAddr:
		return FormatIP(a.IP), a.Port, nil
	case nil:
		return "", 0, ErrNotConnected
	}
	host, port, err := net.SplitHostPort(addr.String())
	if err != nil {
		return "", 0, err
	}
	p, err := strconv.Atoi(port)
	if err != nil {
		return "", 0, err
	}
	if ip := net.ParseIP(host); ip != nil {
		host = FormatIP(ip)
	}
	return host, p, nil
}
