package ext4

import "github.com/ext4fs/ext4fs/filesystem/ext4/md4"

// hashVersion identifies which of the directory-hash algorithms a superblock
// or dx_root uses to key its HTree index. Values match the on-disk
// EXT4_HASH_* constants so they can be read and written without translation.
type hashVersion uint8

const (
	HashVersionLegacy          hashVersion = 0
	HashVersionHalfMD4         hashVersion = 1
	HashVersionTEA             hashVersion = 2
	HashVersionLegacyUnsigned  hashVersion = 3
	HashVersionHalfMD4Unsigned hashVersion = 4
	HashVersionTEAUnsigned     hashVersion = 5
	HashVersionSIP             hashVersion = 6
)

const teaDelta uint32 = 0x9E3779B9

// TEATransform runs the 16-round Tiny Encryption Algorithm mixing used by
// DX_HASH_TEA over one 16-byte chunk of name data, folding the result back
// into buf[0] and buf[1] as the kernel's TEA_transform does.
func TEATransform(buf [4]uint32, in []uint32) [4]uint32 {
	var sum uint32
	b0, b1 := buf[0], buf[1]
	a, b, c, d := in[0], in[1], in[2], in[3]

	for n := 0; n < 16; n++ {
		sum += teaDelta
		b0 += ((b1 << 4) + a) ^ (b1 + sum) ^ ((b1 >> 5) + b)
		b1 += ((b0 << 4) + c) ^ (b0 + sum) ^ ((b0 >> 5) + d)
	}

	buf[0] += b0
	buf[1] += b1
	return buf
}

// str2hashbuf packs up to num*4 bytes of msg into a fixed 8-word buffer the
// way the kernel's str2hashbuf_signed/str2hashbuf_unsigned do: each output
// word folds in the string length as padding, and trailing words beyond the
// input are filled with that same padding so short names still saturate the
// transform's input block. signed selects sign-extension of each byte as a
// signed char would promote in C, matching names containing bytes >= 0x80.
func str2hashbuf(msg string, num int, signed bool) []uint32 {
	var buf [8]uint32
	length := len(msg)

	pad := uint32(length) | uint32(length)<<8
	pad |= pad << 16

	val := pad
	if length > num*4 {
		length = num * 4
	}

	pos := 0
	n := num
	for i := 0; i < length; i++ {
		if i%4 == 0 {
			val = pad
		}
		var ch int32
		if signed {
			ch = int32(int8(msg[i]))
		} else {
			ch = int32(msg[i])
		}
		val = uint32(ch) + (val << 8)
		if i%4 == 3 {
			buf[pos] = val
			pos++
			val = pad
			n--
		}
	}
	n--
	if n >= 0 {
		buf[pos] = val
		pos++
	}
	for n > 0 {
		n--
		if pos < len(buf) {
			buf[pos] = pad
			pos++
		}
	}

	return buf[:]
}

// dxHackHash is the legacy (pre-HTree) directory hash, kept only for
// DX_HASH_LEGACY[_UNSIGNED] compatibility with filesystems created by older
// tools. It carries no real cryptographic mixing, just a rolling multiply.
func dxHackHash(name string, signed bool) uint32 {
	hash0 := uint32(0x12a3fe2d)
	hash1 := uint32(0x37abe8f9)

	for i := 0; i < len(name); i++ {
		var ch int32
		if signed {
			ch = int32(int8(name[i]))
		} else {
			ch = int32(name[i])
		}
		hash := hash1 + (hash0 ^ (uint32(ch) * 7152373))
		if hash&0x80000000 != 0 {
			hash -= 0x7fffffff
		}
		hash1 = hash0
		hash0 = hash
	}
	return hash0 << 1
}

// ext4fsDirhash computes the (major, minor) hash pair used to place and
// locate a name in an HTree-indexed directory. seed is the superblock's
// s_hash_seed (four words); an all-zero seed means use the algorithm's own
// default IV. Unsupported/unknown hash versions return (0, 0), matching the
// kernel's behavior of failing the lookup rather than guessing.
func ext4fsDirhash(name string, version hashVersion, seed []uint32) (hash, minorHash uint32) {
	buf := [4]uint32{0x67452301, 0xefcdab89, 0x98badcfe, 0x10325476}

	hasSeed := false
	for _, s := range seed {
		if s != 0 {
			hasSeed = true
			break
		}
	}
	if hasSeed && len(seed) >= 4 {
		copy(buf[:], seed[:4])
	}

	switch version {
	case HashVersionLegacyUnsigned:
		hash = dxHackHash(name, false)
	case HashVersionLegacy:
		hash = dxHackHash(name, true)
	case HashVersionHalfMD4Unsigned, HashVersionHalfMD4:
		signed := version == HashVersionHalfMD4
		remaining := len(name)
		pos := 0
		for remaining > 0 {
			in := str2hashbuf(name[pos:], 8, signed)
			md4.HalfMD4Transform(buf, in)
			remaining -= 32
			pos += 32
		}
		hash = buf[1]
		minorHash = buf[2]
	case HashVersionTEAUnsigned, HashVersionTEA:
		signed := version == HashVersionTEA
		remaining := len(name)
		pos := 0
		for remaining > 0 {
			in := str2hashbuf(name[pos:], 4, signed)
			buf = TEATransform(buf, in)
			remaining -= 16
			pos += 16
		}
		hash = buf[0]
		minorHash = buf[1]
	default:
		// DX_HASH_SIPHASH and any unrecognized version: not implemented here.
		return 0, 0
	}

	hash &^= 1
	return hash, minorHash
}
