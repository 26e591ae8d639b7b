package kvstore

import (
	"errors"
	"path/filepath"
	"testing"
)

func engines(t *testing.T) map[string]KV {
	t.Helper()
	lvl, err := OpenLevelDBMemory()
	if err != nil {
		t.Fatalf("打开 leveldb 失败: %v", err)
	}
	bdg, err := OpenBadgerMemory()
	if err != nil {
		t.Fatalf("打开 badger 失败: %v", err)
	}
	t.Cleanup(func() {
		_ = lvl.Close()
		_ = bdg.Close()
	})
	return map[string]KV{EngineLevelDB: lvl, EngineBadger: bdg}
}

func TestKVLastAndAscend(t *testing.T) {
	for name, kv := range engines(t) {
		t.Run(name, func(t *testing.T) {
			err := kv.Update(func(txn Txn) error {
				for _, k := range []string{"a1", "a3", "a5", "b1"} {
					if err := txn.Put([]byte(k), []byte("v"+k)); err != nil {
						return err
					}
				}
				// pending writes are visible inside the transaction
				k, _, ok, err := txn.Last([]byte("a"), []byte("b"))
				if err != nil || !ok || string(k) != "a5" {
					t.Fatalf("事务内 Last 应为 a5, 实际 %q ok=%v err=%v", k, ok, err)
				}
				return nil
			})
			if err != nil {
				t.Fatalf("Update 失败: %v", err)
			}

			err = kv.View(func(r Reader) error {
				k, v, ok, err := r.Last([]byte("a"), []byte("a4"))
				if err != nil || !ok {
					t.Fatalf("Last 应找到键: ok=%v err=%v", ok, err)
				}
				if string(k) != "a3" || string(v) != "va3" {
					t.Fatalf("Last 应为 a3, 实际 %q=%q", k, v)
				}
				if _, _, ok, _ := r.Last([]byte("a"), []byte("a1")); ok {
					t.Fatal("limit 为开区间, 不应找到 a1")
				}
				if _, _, ok, _ := r.Last([]byte("c"), []byte("d")); ok {
					t.Fatal("空区间不应找到键")
				}

				var keys []string
				if err := r.Ascend([]byte("a2"), []byte("b"), func(key, _ []byte) error {
					keys = append(keys, string(key))
					return nil
				}); err != nil {
					t.Fatalf("Ascend 失败: %v", err)
				}
				if len(keys) != 2 || keys[0] != "a3" || keys[1] != "a5" {
					t.Fatalf("Ascend 结果不正确: %v", keys)
				}
				return nil
			})
			if err != nil {
				t.Fatalf("View 失败: %v", err)
			}
		})
	}
}

func TestKVUpdateDiscardsOnError(t *testing.T) {
	boom := errors.New("boom")
	for name, kv := range engines(t) {
		t.Run(name, func(t *testing.T) {
			err := kv.Update(func(txn Txn) error {
				if err := txn.Put([]byte("x"), []byte("1")); err != nil {
					return err
				}
				return boom
			})
			if !errors.Is(err, boom) {
				t.Fatalf("应返回回调错误, 实际 %v", err)
			}
			_ = kv.View(func(r Reader) error {
				if _, ok, _ := r.Get([]byte("x")); ok {
					t.Fatal("失败的事务不应提交写入")
				}
				return nil
			})
		})
	}
}

func TestKVDelete(t *testing.T) {
	for name, kv := range engines(t) {
		t.Run(name, func(t *testing.T) {
			_ = kv.Update(func(txn Txn) error { return txn.Put([]byte("k"), []byte("v")) })
			_ = kv.Update(func(txn Txn) error { return txn.Delete([]byte("k")) })
			_ = kv.View(func(r Reader) error {
				if _, ok, err := r.Get([]byte("k")); ok || err != nil {
					t.Fatalf("删除后应不存在: ok=%v err=%v", ok, err)
				}
				return nil
			})
		})
	}
}

func TestOpenEngines(t *testing.T) {
	dir := t.TempDir()
	for _, engine := range []string{EngineLevelDB, EngineBadger} {
		kv, err := Open(engine, filepath.Join(dir, engine))
		if err != nil {
			t.Fatalf("打开 %s 失败: %v", engine, err)
		}
		if err := kv.Close(); err != nil {
			t.Fatalf("关闭 %s 失败: %v", engine, err)
		}
	}
	if _, err := Open("bolt", ""); !errors.Is(err, ErrUnknownEngine) {
		t.Fatalf("未知引擎应报错, 实际 %v", err)
	}
}

func TestPrefixEnd(t *testing.T) {
	if got := prefixEnd([]byte{'h', 0x01, 0xff}); string(got) != string([]byte{'h', 0x02}) {
		t.Fatalf("prefixEnd 不正确: %x", got)
	}
	if got := prefixEnd([]byte{0xff, 0xff}); got != nil {
		t.Fatalf("全 0xff 前缀应无上界: %x", got)
	}
}
