package vkrt

import (
	"bufio"
	"encoding/binary"
	"io"
	"sort"

	"github.com/pkg/errors"

	"github.com/govulkan/govkrt/dtypes"
)

// ModuleMagic opens every serialized module, so a foreign or corrupted blob
// is rejected before any shader data is interpreted.
const ModuleMagic uint32 = 0x02700027

// Serialized module layout, all integers little-endian:
//
//	u32 magic
//	u32 kernel count
//	per kernel, in lexical name order:
//	  str  name            (u32 length + bytes)
//	  u32  shader flags
//	  u32  code word count, then that many u32 SPIR-V words
//	  u32  arg count, then one u8 dtype code per arg
//	  u32  axis tag count, then one str per tag

// Serialize writes the module's shaders and function signatures to w.
func (m *Module) Serialize(w io.Writer) error {
	bw := bufio.NewWriter(w)
	if err := writeU32(bw, ModuleMagic); err != nil {
		return err
	}
	names := make([]string, 0, len(m.shaders))
	for name := range m.shaders {
		names = append(names, name)
	}
	sort.Strings(names)
	if err := writeU32(bw, uint32(len(names))); err != nil {
		return err
	}
	for _, name := range names {
		shader := m.shaders[name]
		info := m.funcs[name]
		if err := writeString(bw, name); err != nil {
			return err
		}
		if err := writeU32(bw, shader.Flags); err != nil {
			return err
		}
		if err := writeU32(bw, uint32(len(shader.Data))); err != nil {
			return err
		}
		for _, word := range shader.Data {
			if err := writeU32(bw, word); err != nil {
				return err
			}
		}
		if err := writeU32(bw, uint32(len(info.ArgTypes))); err != nil {
			return err
		}
		for _, dtype := range info.ArgTypes {
			if err := bw.WriteByte(byte(dtype)); err != nil {
				return err
			}
		}
		if err := writeU32(bw, uint32(len(info.ThreadAxisTags))); err != nil {
			return err
		}
		for _, tag := range info.ThreadAxisTags {
			if err := writeString(bw, tag); err != nil {
				return err
			}
		}
	}
	return bw.Flush()
}

// LoadModule deserializes a module written by Serialize.
func LoadModule(api *DeviceAPI, r io.Reader) (*Module, error) {
	br := bufio.NewReader(r)
	magic, err := readU32(br)
	if err != nil {
		return nil, errors.WithMessage(err, "reading module magic")
	}
	if magic != ModuleMagic {
		return nil, errors.Errorf("bad module magic 0x%08x, want 0x%08x", magic, ModuleMagic)
	}
	count, err := readU32(br)
	if err != nil {
		return nil, errors.WithMessage(err, "reading kernel count")
	}
	shaders := make(map[string]Shader, count)
	funcs := make(map[string]FunctionInfo, count)
	for i := uint32(0); i < count; i++ {
		name, err := readString(br)
		if err != nil {
			return nil, errors.WithMessagef(err, "reading kernel %d name", i)
		}
		flags, err := readU32(br)
		if err != nil {
			return nil, errors.WithMessagef(err, "kernel %q: reading flags", name)
		}
		codeLen, err := readU32(br)
		if err != nil {
			return nil, errors.WithMessagef(err, "kernel %q: reading code length", name)
		}
		code := make([]uint32, codeLen)
		if err := binary.Read(br, binary.LittleEndian, code); err != nil {
			return nil, errors.WithMessagef(err, "kernel %q: reading code", name)
		}
		argCount, err := readU32(br)
		if err != nil {
			return nil, errors.WithMessagef(err, "kernel %q: reading argument count", name)
		}
		argTypes := make([]dtypes.DType, argCount)
		for j := range argTypes {
			b, err := br.ReadByte()
			if err != nil {
				return nil, errors.WithMessagef(err, "kernel %q: reading argument %d dtype", name, j)
			}
			argTypes[j] = dtypes.DType(b)
		}
		tagCount, err := readU32(br)
		if err != nil {
			return nil, errors.WithMessagef(err, "kernel %q: reading axis tag count", name)
		}
		tags := make([]string, tagCount)
		for j := range tags {
			if tags[j], err = readString(br); err != nil {
				return nil, errors.WithMessagef(err, "kernel %q: reading axis tag %d", name, j)
			}
		}
		shaders[name] = Shader{Data: code, Flags: flags}
		funcs[name] = FunctionInfo{ArgTypes: argTypes, ThreadAxisTags: tags}
	}
	return NewModule(api, shaders, funcs)
}

func writeU32(w io.Writer, v uint32) error {
	return binary.Write(w, binary.LittleEndian, v)
}

func readU32(r io.Reader) (uint32, error) {
	var v uint32
	err := binary.Read(r, binary.LittleEndian, &v)
	return v, err
}

func writeString(w *bufio.Writer, s string) error {
	if err := writeU32(w, uint32(len(s))); err != nil {
		return err
	}
	_, err := w.WriteString(s)
	return err
}

func readString(r *bufio.Reader) (string, error) {
	n, err := readU32(r)
	if err != nil {
		return "", err
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", err
	}
	return string(buf), nil
}
