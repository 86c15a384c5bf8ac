package mctl

import "fmt"

// RemapTable assigns controller address lines to PHY pins
type RemapTable [22]uint32

// RemapID names a remap table; RemapNone leaves all lines at zero
type RemapID uint8

const (
	RemapNone RemapID = iota
	RemapCFG1
	RemapCFG2
	RemapCFG3
	RemapCFG4
	RemapCFG5
	RemapCFG6
	RemapCFG7
)

func (id RemapID) String() string {
	if id == RemapNone {
		return "none"
	}
	return fmt.Sprintf("cfg%d", uint8(id))
}

var remapTables = [...]RemapTable{
	RemapCFG1: {1, 9, 3, 7, 8, 18, 4, 13, 5, 6, 10, 2, 14, 12, 0, 0, 21, 17, 20, 19, 11, 22},
	RemapCFG2: {4, 9, 3, 7, 8, 18, 1, 13, 2, 6, 10, 5, 14, 12, 0, 0, 21, 17, 20, 19, 11, 22},
	RemapCFG3: {1, 7, 8, 12, 10, 18, 4, 13, 5, 6, 3, 2, 9, 0, 0, 0, 21, 17, 20, 19, 11, 22},
	RemapCFG4: {4, 12, 10, 7, 8, 18, 1, 13, 2, 6, 3, 5, 9, 0, 0, 0, 21, 17, 20, 19, 11, 22},
	RemapCFG5: {13, 2, 7, 9, 12, 19, 5, 1, 6, 3, 4, 8, 10, 0, 0, 0, 21, 22, 18, 17, 11, 20},
	RemapCFG6: {3, 10, 7, 13, 9, 11, 1, 2, 4, 6, 8, 5, 12, 0, 0, 0, 20, 1, 0, 21, 22, 17},
	RemapCFG7: {3, 2, 4, 7, 9, 1, 17, 12, 18, 14, 13, 8, 15, 6, 10, 5, 19, 22, 16, 21, 20, 11},
}

// Table returns the lines for id
func (id RemapID) Table() RemapTable {
	if int(id) >= len(remapTables) {
		return RemapTable{}
	}
	return remapTables[id]
}

// Pack returns AC_MAP1..4. MAP1 is written a second time with bit 0 set
// to latch the mapping.
func (t RemapTable) Pack() [4]uint32 {
	return [4]uint32{
		t[4]<<25 | t[3]<<20 | t[2]<<15 | t[1]<<10 | t[0]<<5,
		t[10]<<25 | t[9]<<20 | t[8]<<15 | t[7]<<10 | t[6]<<5 | t[5],
		t[15]<<20 | t[14]<<15 | t[13]<<10 | t[12]<<5 | t[11],
		t[21]<<25 | t[20]<<20 | t[19]<<15 | t[18]<<10 | t[17]<<5 | t[16],
	}
}

// SelectRemap picks the table for a part. apply is false when the
// registers must be left alone: LPDDR parts, and DDR2 on fuse 15.
func SelectRemap(typ DramType, fuse uint32, override bool) (id RemapID, apply bool) {
	if override {
		id = RemapCFG7
	} else {
		switch fuse {
		case 8:
			id = RemapCFG2
		case 9:
			id = RemapCFG3
		case 10:
			id = RemapCFG5
		case 11:
			id = RemapCFG4
		case 13, 14:
			id = RemapNone
		default:
			id = RemapCFG1
		}
	}

	switch typ {
	case DDR2:
		if fuse == 15 {
			return RemapNone, false
		}
		return RemapCFG6, true
	case DDR3:
		return id, true
	}
	return id, false
}

func (c *Controller) remap(p *Params) {
	fuse := (c.r.sid.Read() >> 8) & 0xf
	id, apply := SelectRemap(p.Type, fuse, p.Flags().RemapOverride())
	c.remapID = id
	if !apply {
		return
	}
	maps := id.Table().Pack()
	for i, v := range maps {
		c.r.acMap[i].Write(v)
	}
	c.r.acMap[0].Write(maps[0] | 1)
}
