//go:build linux

package storage

import (
	"fmt"
	"syscall"
)

// statfs f_type values for network filesystems.
var networkMagic = map[int64]string{
	0x6969:     "nfs",
	0xFF534D42: "cifs",
	0x517B:     "smbfs",
	0xFE534D42: "smb2",
}

func filesystemType(path string) (string, bool, error) {
	var st syscall.Statfs_t
	if err := syscall.Statfs(path, &st); err != nil {
		return "", false, fmt.Errorf("statfs %q: %w", path, err)
	}
	magic := int64(st.Type)
	if name, ok := networkMagic[magic]; ok {
		return name, true, nil
	}
	return fmt.Sprintf("0x%x", magic), false, nil
}
