package sdfat

import "strings"

// illegal83 holds the printable characters FAT forbids in short names.
const illegal83 = `|<>^+=?/[];,*"\`

var (
	dotName    = ShortName{'.', ' ', ' ', ' ', ' ', ' ', ' ', ' ', ' ', ' ', ' '}
	dotDotName = ShortName{'.', '.', ' ', ' ', ' ', ' ', ' ', ' ', ' ', ' ', ' '}
)

// Make83Name converts name to its blank padded 8.3 form. Lower case letters
// are folded to upper case. It fails with [ErrInvalidName] on characters
// outside 0x21..0x7E, characters FAT forbids, more than one dot, a base
// longer than 8 or an extension longer than 3 characters and an empty base.
func Make83Name(name string) (sn ShortName, err error) {
	for i := range sn {
		sn[i] = ' '
	}
	i, n := 0, 7 // Write index and last allowed index of current part.
	for j := 0; j < len(name); j++ {
		c := name[j]
		if c == '.' {
			if n == 10 {
				return sn, ErrInvalidName // Only one dot allowed.
			}
			n = 10
			i = 8
			continue
		}
		if strings.IndexByte(illegal83, c) >= 0 || i > n || c < 0x21 || c > 0x7E {
			return sn, ErrInvalidName
		}
		if 'a' <= c && c <= 'z' {
			c -= 'a' - 'A'
		}
		sn[i] = c
		i++
	}
	if sn[0] == ' ' {
		return sn, ErrInvalidName
	}
	return sn, nil
}
